package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func job(i int, kind Kind) Job {
	return Job{ID: fmt.Sprintf("job-%d", i), Kind: kind, ReportID: fmt.Sprintf("r%d", i), SpotID: "spot", EnqueuedAt: time.Now()}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))
		ctx := context.Background()

		So(q.Len(), ShouldEqual, 0)
		So(q.Cap(), ShouldEqual, 2)

		Convey("When it is filled", func() {
			So(q.Enqueue(ctx, job(1, KindAnalyze)), ShouldBeTrue)
			So(q.Enqueue(ctx, job(2, KindRescore)), ShouldBeTrue)

			Convey("Then further jobs are refused without blocking", func() {
				So(q.Enqueue(ctx, job(3, KindRescore)), ShouldBeFalse)
				So(q.Len(), ShouldEqual, 2)
			})

			Convey("Then jobs come out in order", func() {
				dctx, cancel := context.WithCancel(ctx)
				defer cancel()
				ch := q.Dequeue(dctx)
				So((<-ch).ID, ShouldEqual, "job-1")
				So((<-ch).ID, ShouldEqual, "job-2")
			})
		})

		Convey("When it is closed", func() {
			So(q.Enqueue(ctx, job(1, KindRescore)), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue is refused and queued jobs drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, job(2, KindRescore)), ShouldBeFalse)

				var got []string
				for j := range q.Dequeue(ctx) {
					got = append(got, j.ID)
				}
				So(got, ShouldResemble, []string{"job-1"})
			})
		})

		Convey("When the caller context is already done", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(q.Enqueue(cctx, job(1, KindAnalyze)), ShouldBeFalse)
		})

		Convey("When the dequeue context is cancelled", func() {
			dctx, cancel := context.WithCancel(ctx)
			ch := q.Dequeue(dctx)
			cancel()

			Convey("Then the channel closes", func() {
				select {
				case _, ok := <-ch:
					So(ok, ShouldBeFalse)
				case <-time.After(time.Second):
					So("channel not closed", ShouldBeEmpty)
				}
			})
		})
	})
}

func TestInMemoryQueue_ConcurrentEnqueue(t *testing.T) {
	Convey("Given many producers and a small queue", t, func() {
		q := NewInMemoryQueue(WithCapacity(50))
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for p := 0; p < 10; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					if q.Enqueue(context.Background(), job(p*10+i, KindRescore)) {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}(p)
		}
		wg.Wait()

		Convey("Then exactly capacity jobs are accepted", func() {
			So(accepted, ShouldEqual, 50)
			So(q.Len(), ShouldEqual, 50)
		})
	})
}

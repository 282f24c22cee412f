package repository

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
	"github.com/okian/surfwatch/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BackendMongo names the MongoDB store.
const BackendMongo = "mongo"

// Collection names.
const (
	SpotsCollection   = "surfspots"
	ReportsCollection = "hazardreports"
)

const mongoConnectTimeout = 15 * time.Second

// MongoStore persists spots and reports as BSON documents. The recent-reports
// window and incident counter are updated atomically with $push/$slice and $inc.
type MongoStore struct {
	client  *mongo.Client
	spots   *mongo.Collection
	reports *mongo.Collection
	opts    options
}

// OpenMongo connects to uri, pings the server and ensures indexes on dbName.
func OpenMongo(ctx context.Context, uri, dbName string, opts ...Option) (*MongoStore, error) {
	o := buildOptions(opts)

	dctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	start := time.Now()
	client, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, model.StorageError("mongo connect", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, model.StorageError("mongo ping", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:  client,
		spots:   db.Collection(SpotsCollection),
		reports: db.Collection(ReportsCollection),
		opts:    o,
	}
	if err := s.createIndexes(dctx); err != nil {
		o.logger.Warn(ctx, "mongo index creation failed", logger.Error(err))
	}

	o.logger.Info(ctx, "mongo connected",
		logger.String("uri", redactURI(uri)),
		logger.String("db", dbName),
		logger.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return s, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	if _, err := s.spots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := s.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "surfSpot", Value: 1}, {Key: "reportDate", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

// Backend implements Store.
func (s *MongoStore) Backend() string { return BackendMongo }

// Ping implements Store.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return model.StorageError("mongo ping", err)
	}
	return nil
}

// Close implements Store.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ListSpots implements SpotStore.
func (s *MongoStore) ListSpots(ctx context.Context) ([]model.SurfSpot, error) {
	cur, err := s.spots.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, model.StorageError("list spots", err)
	}
	out := []model.SurfSpot{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, model.StorageError("decode spots", err)
	}
	for i := range out {
		out[i].Derive()
	}
	return out, nil
}

// GetSpot implements SpotStore.
func (s *MongoStore) GetSpot(ctx context.Context, id string) (model.SurfSpot, error) {
	var sp model.SurfSpot
	err := s.spots.FindOne(ctx, bson.M{"_id": id}).Decode(&sp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.SurfSpot{}, model.NotFoundf("surf spot %q", id)
	}
	if err != nil {
		return model.SurfSpot{}, model.StorageError("get spot", err)
	}
	sp.Derive()
	return sp, nil
}

// UpsertSpot implements SpotStore.
func (s *MongoStore) UpsertSpot(ctx context.Context, spot model.SurfSpot) (model.SurfSpot, error) {
	if err := spot.Validate(); err != nil {
		return model.SurfSpot{}, err
	}
	spot = spot.Clone()
	spot.Derive()

	// Identity fields are always refreshed; everything else is only
	// written when the document is first inserted.
	insert := bson.M{
		"_id":                 spot.ID,
		"riskScore":           spot.RiskScore,
		"riskLevel":           spot.RiskLevel,
		"flagColor":           spot.FlagColor,
		"skillLevelRisks":     spot.SkillLevelRisks,
		"totalIncidents":      spot.TotalIncidents,
		"lastUpdated":         spot.LastUpdated,
		"recentHazardReports": spot.RecentReports,
	}
	update := bson.M{
		"$set": bson.M{
			"name":        spot.Name,
			"location":    spot.Location,
			"coordinates": spot.Coordinates,
		},
		"$setOnInsert": insert,
	}
	var out model.SurfSpot
	err := s.spots.FindOneAndUpdate(ctx, bson.M{"name": spot.Name}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return model.SurfSpot{}, model.StorageError("upsert spot", err)
	}
	out.Derive()
	return out, nil
}

// ApplyScore implements SpotStore. The read-modify-write is last-write-wins.
func (s *MongoStore) ApplyScore(ctx context.Context, id string, skill risk.SkillLevel, score float64, incidents *int) (model.SurfSpot, error) {
	sp, err := s.GetSpot(ctx, id)
	if err != nil {
		return model.SurfSpot{}, err
	}
	if err := sp.ApplySkillScore(skill, score, incidents, s.opts.clock.Now()); err != nil {
		return model.SurfSpot{}, err
	}
	update := bson.M{"$set": bson.M{
		"riskScore":       sp.RiskScore,
		"riskLevel":       sp.RiskLevel,
		"flagColor":       sp.FlagColor,
		"skillLevelRisks": sp.SkillLevelRisks,
		"lastUpdated":     sp.LastUpdated,
	}}
	res, err := s.spots.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return model.SurfSpot{}, model.StorageError("apply score", err)
	}
	if res.MatchedCount == 0 {
		return model.SurfSpot{}, model.NotFoundf("surf spot %q", id)
	}
	return sp, nil
}

// AppendRecentReport implements SpotStore.
func (s *MongoStore) AppendRecentReport(ctx context.Context, spotID, ref string) error {
	update := bson.M{"$push": bson.M{"recentHazardReports": bson.M{
		"$each":  bson.A{ref},
		"$slice": -model.RecentReportsCap,
	}}}
	return s.updateSpot(ctx, "append recent report", spotID, update)
}

// IncrementIncidents implements SpotStore.
func (s *MongoStore) IncrementIncidents(ctx context.Context, spotID string) error {
	return s.updateSpot(ctx, "increment incidents", spotID, bson.M{"$inc": bson.M{"totalIncidents": 1}})
}

func (s *MongoStore) updateSpot(ctx context.Context, op, id string, update bson.M) error {
	res, err := s.spots.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return model.StorageError(op, err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundf("surf spot %q", id)
	}
	return nil
}

// CountSpots implements SpotStore.
func (s *MongoStore) CountSpots(ctx context.Context) (int, error) {
	n, err := s.spots.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, model.StorageError("count spots", err)
	}
	return int(n), nil
}

// CreateReport implements ReportStore.
func (s *MongoStore) CreateReport(ctx context.Context, r model.HazardReport) error {
	if _, err := s.GetSpot(ctx, r.SurfSpotID); err != nil {
		return err
	}
	if _, err := s.reports.InsertOne(ctx, r); err != nil {
		return model.StorageError("insert report", err)
	}
	return nil
}

// GetReport implements ReportStore.
func (s *MongoStore) GetReport(ctx context.Context, id string) (model.HazardReport, error) {
	var r model.HazardReport
	err := s.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.HazardReport{}, model.NotFoundf("hazard report %q", id)
	}
	if err != nil {
		return model.HazardReport{}, model.StorageError("get report", err)
	}
	return r, nil
}

// RecentReports implements ReportStore.
func (s *MongoStore) RecentReports(ctx context.Context, spotID string, since time.Time) ([]model.HazardReport, error) {
	filter := bson.M{
		"surfSpot":   spotID,
		"status":     bson.M{"$ne": model.StatusRejected},
		"reportDate": bson.M{"$gte": since},
	}
	cur, err := s.reports.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "reportDate", Value: -1}}))
	if err != nil {
		return nil, model.StorageError("recent reports", err)
	}
	out := []model.HazardReport{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, model.StorageError("decode reports", err)
	}
	return out, nil
}

// SetAnalysis implements ReportStore.
func (s *MongoStore) SetAnalysis(ctx context.Context, id string, a model.Analysis) error {
	res, err := s.reports.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"aiAnalysis": a}})
	if err != nil {
		return model.StorageError("set analysis", err)
	}
	if res.MatchedCount == 0 {
		return model.NotFoundf("hazard report %q", id)
	}
	return nil
}

// SetStatus implements ReportStore.
func (s *MongoStore) SetStatus(ctx context.Context, id string, status model.Status) (model.HazardReport, error) {
	update := bson.M{"$set": bson.M{"status": status, "verified": status == model.StatusVerified}}
	var r model.HazardReport
	err := s.reports.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.HazardReport{}, model.NotFoundf("hazard report %q", id)
	}
	if err != nil {
		return model.HazardReport{}, model.StorageError("set status", err)
	}
	return r, nil
}

func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}

// Command seed loads the initial surf spots and manual risk scores into the
// configured store and prints the resulting risk table.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/okian/surfwatch/internal/adapters/repository"
	"github.com/okian/surfwatch/internal/config"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/risk"
	"github.com/okian/surfwatch/pkg/logger"
)

// Globals are the store selection flags shared by every command. Empty
// flags keep the value from the config file and SURFWATCH_ environment.
type Globals struct {
	Config      string `help:"YAML config file." type:"path" env:"SURFWATCH_CONFIG"`
	StoreDriver string `help:"Store driver: memory, sqlite or mongo." name:"store-driver"`
	SQLitePath  string `help:"SQLite database file." name:"sqlite-path"`
	MongoURI    string `help:"MongoDB connection URI." name:"mongo-uri"`
	MongoDB     string `help:"MongoDB database name." name:"mongo-db"`

	Stdout io.Writer `kong:"-"`
}

// CLI is the seed command line.
type CLI struct {
	Globals

	Spots   spotsCmd   `cmd:"" help:"Insert or update the tracked surf spots."`
	Scores  scoresCmd  `cmd:"" help:"Apply the manual per-skill risk scores."`
	Summary summaryCmd `cmd:"" help:"Print the per-skill risk table."`
}

func main() {
	cli := CLI{Globals: Globals{Stdout: os.Stdout}}
	kctx := kong.Parse(&cli,
		kong.Name("seed"),
		kong.Description("Seed surf spots and risk scores."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// open resolves the configuration and opens the selected store.
func (g *Globals) open(ctx context.Context) (repository.Store, error) {
	cfg, err := config.LoadFile(ctx, g.Config)
	if err != nil {
		return nil, err
	}
	if g.StoreDriver != "" {
		cfg.StoreDriver = g.StoreDriver
	}
	if g.SQLitePath != "" {
		cfg.SQLitePath = g.SQLitePath
	}
	if g.MongoURI != "" {
		cfg.MongoURI = g.MongoURI
	}
	if g.MongoDB != "" {
		cfg.MongoDB = g.MongoDB
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return repository.Open(ctx, cfg, repository.WithLogger(logger.Get().Named("seed")))
}

func (g *Globals) out() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

type spotsCmd struct{}

func (c *spotsCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return seedSpotsInto(ctx, store, g.out())
}

func seedSpotsInto(ctx context.Context, store repository.Store, w io.Writer) error {
	for _, s := range seedSpots {
		spot, err := store.UpsertSpot(ctx, model.NewSurfSpot(s.Name, s.Location, s.Coords, time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", s.Name, err)
		}
		fmt.Fprintf(w, "spot %-12s %s\n", spot.Name, spot.ID)
	}
	fmt.Fprintf(w, "%d spots seeded\n", len(seedSpots))
	return nil
}

type scoresCmd struct{}

func (c *scoresCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return applyManualScores(ctx, store, g.out())
}

// applyManualScores writes each skill score through the store, which
// re-derives levels, flags and the blended overall score.
func applyManualScores(ctx context.Context, store repository.Store, w io.Writer) error {
	spots, err := store.ListSpots(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]model.SurfSpot, len(spots))
	for _, s := range spots {
		byName[s.Name] = s
	}

	names := make([]string, 0, len(manualScores))
	for name := range manualScores {
		names = append(names, name)
	}
	sort.Strings(names)

	updated := 0
	for _, name := range names {
		spot, ok := byName[name]
		if !ok {
			fmt.Fprintf(w, "skip %-12s not found, run spots first\n", name)
			continue
		}
		sc := manualScores[name]
		for _, p := range []struct {
			skill risk.SkillLevel
			score float64
		}{
			{risk.Beginner, sc.Beginner},
			{risk.Intermediate, sc.Intermediate},
			{risk.Advanced, sc.Advanced},
		} {
			if spot, err = store.ApplyScore(ctx, spot.ID, p.skill, p.score, nil); err != nil {
				return fmt.Errorf("score %s/%s: %w", name, p.skill, err)
			}
		}
		fmt.Fprintf(w, "score %-12s overall %.2f %s\n", name, spot.RiskScore, spot.RiskLevel)
		updated++
	}
	fmt.Fprintf(w, "%d spots scored\n", updated)
	return nil
}

type summaryCmd struct{}

func (c *summaryCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	spots, err := store.ListSpots(ctx)
	if err != nil {
		return err
	}
	return writeSummary(g.out(), spots)
}

func writeSummary(w io.Writer, spots []model.SurfSpot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SPOT\tOVERALL\tBEGINNER\tINTERMEDIATE\tADVANCED")
	for _, s := range spots {
		fmt.Fprintf(tw, "%s\t%.2f %s\t%s\t%s\t%s\n",
			s.Name,
			s.RiskScore, flagInitial(s.FlagColor),
			skillCell(s.SkillLevelRisks.Beginner),
			skillCell(s.SkillLevelRisks.Intermediate),
			skillCell(s.SkillLevelRisks.Advanced),
		)
	}
	return tw.Flush()
}

func skillCell(sr model.SkillRisk) string {
	if sr.Score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f %s", *sr.Score, flagInitial(sr.FlagColor))
}

// flagInitial renders green, yellow and red as G, Y and R.
func flagInitial(c risk.FlagColor) string {
	if c == "" {
		return "?"
	}
	return strings.ToUpper(string(c[:1]))
}

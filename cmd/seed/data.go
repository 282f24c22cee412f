package main

import (
	"github.com/okian/surfwatch/internal/domain/model"
)

type seedSpot struct {
	Name     string
	Location string
	Coords   model.Coordinates
}

// seedSpots are the surf breaks tracked at launch.
var seedSpots = []seedSpot{
	{"Arugam Bay", "Eastern Province", model.Coordinates{Latitude: 6.8403, Longitude: 81.8358}},
	{"Hikkaduwa", "Southern Province", model.Coordinates{Latitude: 6.1389, Longitude: 80.1039}},
	{"Weligama", "Southern Province", model.Coordinates{Latitude: 5.9750, Longitude: 80.4296}},
	{"Unawatuna", "Southern Province", model.Coordinates{Latitude: 6.0108, Longitude: 80.2506}},
	{"Midigama", "Southern Province", model.Coordinates{Latitude: 5.9622, Longitude: 80.3722}},
	{"Mirissa", "Southern Province", model.Coordinates{Latitude: 5.9466, Longitude: 80.4698}},
	{"Matara", "Southern Province", model.Coordinates{Latitude: 5.9485, Longitude: 80.5353}},
	{"Ahangama", "Southern Province", model.Coordinates{Latitude: 5.9722, Longitude: 80.3681}},
	{"Thalpe", "Southern Province", model.Coordinates{Latitude: 6.0239, Longitude: 80.2369}},
	{"Trincomalee", "Eastern Province", model.Coordinates{Latitude: 8.5874, Longitude: 81.2152}},
	{"Point Pedro", "Northern Province", model.Coordinates{Latitude: 9.8167, Longitude: 80.2333}},
	{"Kalpitiya", "North Western Province", model.Coordinates{Latitude: 8.2333, Longitude: 79.7667}},
}

// skillScores is a beginner/intermediate/advanced triple.
type skillScores struct {
	Beginner, Intermediate, Advanced float64
}

// manualScores are hand-tuned per-skill scores applied before the scoring
// service has produced its own.
var manualScores = map[string]skillScores{
	"Hikkaduwa":   {7.5, 7.5, 3.0},
	"Midigama":    {7.0, 7.3, 4.0},
	"Mirissa":     {6.6, 6.8, 5.0},
	"Unawatuna":   {8.0, 7.4, 6.0},
	"Ahangama":    {6.0, 6.5, 4.0},
	"Arugam Bay":  {5.5, 6.3, 5.0},
	"Matara":      {6.2, 5.5, 3.0},
	"Thalpe":      {5.8, 5.8, 4.0},
	"Weligama":    {6.3, 6.7, 4.5},
	"Kalpitiya":   {3.5, 4.0, 3.0},
	"Point Pedro": {4.0, 4.5, 3.5},
	"Trincomalee": {4.5, 5.0, 4.0},
}

package main

import (
	"context"
	"flag"
	"iter"
	"log/slog"
	"os"

	"github.com/poiesic/retriever"
	"github.com/poiesic/retriever/config"
	"github.com/poiesic/retriever/ingestion"
)

var manuals = []ingestion.Passage{
	{Filename: "Carrier_48TC_Service.pdf", PageNumber: 12, Text: "Refrigerant leak repair: recover the charge, braze the leaking joint with 15 percent silver alloy and pressure test with dry nitrogen to 150 psig."},
	{Filename: "Carrier_48TC_Service.pdf", PageNumber: 12, ChunkIndex: 1, Text: "After a leak repair evacuate the system to 500 microns and confirm the vacuum holds for ten minutes before charging."},
	{Filename: "Carrier_48TC_Service.pdf", PageNumber: 18, Text: "If the compressor short cycles, check the low pressure switch and verify the refrigerant charge using the subcooling method."},
	{Filename: "Carrier_48TC_Service.pdf", PageNumber: 21, Text: "The economizer damper motor requires 24 VAC. Verify voltage at terminals TR and TR1 before replacing the actuator."},
	{Filename: "Carrier_48TC_Service.pdf", PageNumber: 30, Text: "Clean the condenser coil annually with a mild detergent. Never use high pressure water on microchannel coils."},
	{Filename: "Carrier_58SB_Furnace.pdf", PageNumber: 4, Text: "The furnace control flashes code 31 when the pressure switch fails to close. Inspect the inducer motor and vent piping."},
	{Filename: "Carrier_58SB_Furnace.pdf", PageNumber: 9, Text: "Flame sensor current should read at least 0.5 microamps. Clean the sensor rod with fine steel wool if readings are low."},
	{Filename: "Trane_XR14_Installation.pdf", PageNumber: 3, Text: "Cooling policy overview: set the thermostat no lower than 72 degrees during peak demand periods to reduce compressor load."},
	{Filename: "Trane_XR14_Installation.pdf", PageNumber: 7, Text: "Line set length beyond 50 feet requires additional refrigerant. Add 0.6 ounces of R-410A per foot of liquid line."},
	{Filename: "Trane_XR14_Installation.pdf", PageNumber: 7, ChunkIndex: 1, Text: "Service valves must be fully back seated after charging. Replace the valve caps to prevent refrigerant leaks at the stem."},
	{Filename: "Trane_XR14_Installation.pdf", PageNumber: 11, Text: "Mount the outdoor unit on a level pad with at least 12 inches of clearance on the service side."},
	{Filename: "Trane_XR14_Installation.pdf", PageNumber: 15, Text: "Troubleshooting: a frozen evaporator coil usually indicates low airflow or a low refrigerant charge."},
	{Filename: "Trane_S9V2_Furnace.pdf", PageNumber: 22, Text: "The integrated control board blinks twice to indicate an open pressure switch. Check the condensate trap for blockage."},
	{Filename: "Trane_S9V2_Furnace.pdf", PageNumber: 25, Text: "Set the blower speed taps so the temperature rise stays within the range printed on the rating plate."},
	{Filename: "Lennox_ML180_Furnace.pdf", PageNumber: 5, Text: "Inspect the condensate drain line for blockages each heating season. A blocked drain will trip the pressure switch."},
	{Filename: "Lennox_ML180_Furnace.pdf", PageNumber: 14, Text: "Error code E200 indicates a hard lockout due to a rollout switch. Determine the cause of flame rollout before resetting."},
	{Filename: "Lennox_ML180_Furnace.pdf", PageNumber: 19, Text: "Gas valve outlet pressure should be 3.5 inches water column for natural gas at high fire."},
	{Filename: "Lennox_XC21_Service.pdf", PageNumber: 8, Text: "The variable capacity compressor is protected by the inverter. Do not check charge until the unit has run at full speed for 15 minutes."},
	{Filename: "Lennox_XC21_Service.pdf", PageNumber: 16, Text: "Use an electronic leak detector around the coil headers and brazed joints when searching for a refrigerant leak."},
	{Filename: "Lennox_XC21_Service.pdf", PageNumber: 23, Text: "The outdoor fan motor is an ECM. Measure the control signal before condemning the motor."},
	{Filename: "Goodman_GSX14_Installation.pdf", PageNumber: 6, Text: "Verify the disconnect is sized per the minimum circuit ampacity on the unit nameplate."},
	{Filename: "Goodman_GSX14_Installation.pdf", PageNumber: 10, Text: "Refrigerant leak causes include vibration rubbing through copper lines and corrosion of the evaporator coil."},
	{Filename: "Goodman_GSX14_Installation.pdf", PageNumber: 13, Text: "Weak run capacitors cause hard starting. Replace any capacitor reading more than 6 percent below its rated microfarads."},
	{Filename: "Goodman_GMVC96_Furnace.pdf", PageNumber: 31, Text: "Seven flashes on the status LED indicate a lost flame signal. Check gas supply pressure and the flame sensor."},
	{Filename: "Goodman_GMVC96_Furnace.pdf", PageNumber: 35, Text: "Annual maintenance includes replacing the filter, inspecting the heat exchanger and testing the safety controls."},
	{Filename: "Rheem_RA14_Service.pdf", PageNumber: 9, Text: "High head pressure with normal suction usually points to a dirty condenser coil or a failed condenser fan."},
	{Filename: "Rheem_RA14_Service.pdf", PageNumber: 17, Text: "Before opening the refrigerant circuit, recover the charge into an approved cylinder. Venting refrigerant is illegal."},
	{Filename: "Rheem_RA14_Service.pdf", PageNumber: 26, Text: "The defrost board initiates defrost every 60 minutes by default. Move the jumper to 30 or 90 minutes for local climate."},
	{Filename: "Rheem_R96V_Furnace.pdf", PageNumber: 12, Text: "Limit switch trips are caused by restricted airflow. Check filters, supply registers and the blower wheel."},
	{Filename: "Rheem_R96V_Furnace.pdf", PageNumber: 20, Text: "Vent termination must be at least 12 inches above the expected snow level."},
}

var (
	seedFileName = flag.String("src", "", "JSON lines file of seed passages")
	dbPath       = flag.String("db", "./retriever_db", "path to the database directory")
	collection   = flag.String("collection", config.DefaultCollection, "collection to seed")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// passagesFromFile returns an iterator over the passages in a JSON lines file.
func passagesFromFile(filename string) (iter.Seq[ingestion.Passage], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	passages, err := ingestion.ReadPassages(f)
	if err != nil {
		return nil, err
	}
	return passagesFromSlice(passages), nil
}

// passagesFromSlice returns an iterator over a slice of passages.
func passagesFromSlice(passages []ingestion.Passage) iter.Seq[ingestion.Passage] {
	return func(yield func(ingestion.Passage) bool) {
		for _, p := range passages {
			if !yield(p) {
				return
			}
		}
	}
}

// ingestBatched reads from a source iterator and ingests passages in batches.
func ingestBatched(ctx context.Context, pipeline *ingestion.Pipeline, source iter.Seq[ingestion.Passage], batchSize int) error {
	batch := make([]ingestion.Passage, 0, batchSize)

	for p := range source {
		batch = append(batch, p)
		if len(batch) == batchSize {
			if _, err := pipeline.Ingest(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	// Process any remaining passages
	if len(batch) > 0 {
		if _, err := pipeline.Ingest(ctx, batch); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	db, err := retriever.NewDatabase(*dbPath, retriever.WithCollection(*collection))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ingester, err := db.NewIngestionPipeline()
	if err != nil {
		panic(err)
	}
	defer ingester.Release()

	ctx := context.Background()

	// Determine source of seed data
	var source iter.Seq[ingestion.Passage]
	if *seedFileName != "" {
		source, err = passagesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = passagesFromSlice(manuals)
	}

	// Ingest in batches of 5
	if err := ingestBatched(ctx, ingester, source, 5); err != nil {
		panic(err)
	}
}

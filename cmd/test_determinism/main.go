package main

import (
	"fmt"
	"log"
	"math"
	"os"

	"noise-lab/audio"
	"noise-lab/features"
)

// Test if feature extraction is deterministic
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run main.go <path-to-wav-file>")
	}

	testFile := os.Args[1]
	log.Printf("Testing determinism with: %s\n", testFile)

	samples, rate, err := audio.LoadWAV(testFile, 44100)
	if err != nil {
		log.Fatalf("load failed: %v", err)
	}
	frames := audio.SplitFrames(samples, 4096)
	if len(frames) == 0 {
		log.Fatalf("file is shorter than one frame")
	}

	const numRuns = 5
	runs := make([][]features.Vector, numRuns)
	for i := range runs {
		runs[i] = make([]features.Vector, len(frames))
		for j, frame := range frames {
			runs[i][j], _ = features.Extract(frame, rate)
		}
		v := runs[i][0]
		log.Printf("Run %d: frame 0: %.10f, %.10f, %.10f, %.10f, %.10f",
			i+1, v[0], v[1], v[2], v[3], v[4])
	}

	fmt.Println("\n=== Determinism Check ===")
	allIdentical := true
	maxDiff := 0.0

	for i := 1; i < numRuns; i++ {
		for f := range frames {
			for k := range runs[0][f] {
				diff := math.Abs(runs[0][f][k] - runs[i][f][k])
				maxDiff = math.Max(maxDiff, diff)
				if diff > 0 {
					allIdentical = false
					fmt.Printf("❌ Frame %d feature %d differs between run 1 and run %d: %.15f vs %.15f\n",
						f, k, i+1, runs[0][f][k], runs[i][f][k])
				}
			}
		}
	}

	if allIdentical {
		fmt.Printf("✅ %d frames produced IDENTICAL vectors over %d runs\n", len(frames), numRuns)
	} else {
		fmt.Printf("❌ Feature extraction is NON-DETERMINISTIC (max diff: %e)\n", maxDiff)
	}

	// Neighbouring frames of a steady recording should sit within the match threshold.
	fmt.Println("\n=== Frame-to-Frame Distance ===")
	var total, worst float64
	for f := 1; f < len(frames); f++ {
		d := features.Distance(runs[0][f-1], runs[0][f])
		total += d
		worst = math.Max(worst, d)
	}
	if len(frames) > 1 {
		fmt.Printf("mean=%.4f max=%.4f over %d pairs\n", total/float64(len(frames)-1), worst, len(frames)-1)
	}
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"noise-lab/audio"
	"noise-lab/identity"
	"noise-lab/noise"
)

// Replays a WAV file frame by frame through a local engine. Frames are
// stamped with their position in the file rather than wall time, so pending
// expiry follows the recording.
func main() {
	sampleRate := flag.Int("rate", 44100, "Resample the file to this rate")
	frameSize := flag.Int("frame", 4096, "Samples per frame")
	threshold := flag.Float64("threshold", 0.35, "Match threshold")
	ttl := flag.Duration("ttl", 30*time.Second, "Pending identity lifetime")
	approveAfter := flag.Int("approve-after", 0, "Approve a pending identity once it has this many observations (0 disables)")
	intensity := flag.Float64("intensity", 0, "Noise intensity applied before processing")
	jitter := flag.Float64("jitter", 0, "Shift probability applied before processing")
	asJSON := flag.Bool("json", false, "Print one JSON result per frame")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: replay_wav [flags] <path-to-wav-file>")
	}
	path := flag.Arg(0)

	samples, rate, err := audio.LoadWAV(path, *sampleRate)
	if err != nil {
		log.Fatalf("failed to load %s: %v", path, err)
	}
	frames := audio.SplitFrames(samples, *frameSize)
	frameDuration := time.Duration(float64(*frameSize) / float64(rate) * float64(time.Second))

	clock := time.Unix(0, 0)
	model := identity.New(identity.Config{
		MatchThreshold: *threshold,
		SampleRate:     rate,
		PendingTTL:     *ttl,
	},
		identity.WithClock(func() time.Time { return clock }),
		identity.WithObserver(identity.ObserverFunc(func(e identity.Event) {
			if !*asJSON {
				fmt.Printf("   [%s] %s %s\n", e.At.Format("04:05.000"), e.Kind, e.IdentityID)
			}
		})),
	)

	injector := noise.NewInjector(nil)
	injector.Update(*intensity, *jitter)

	log.Printf("Replaying %s: %d frames of %d samples at %d Hz\n", path, len(frames), *frameSize, rate)

	enc := json.NewEncoder(os.Stdout)
	for i, frame := range frames {
		res := model.Process(injector.Apply(frame))

		if *asJSON {
			if err := enc.Encode(res); err != nil {
				log.Fatalf("encode: %v", err)
			}
		} else {
			matched := "-"
			if res.MatchedID != "" {
				matched = fmt.Sprintf("%s (%.2f)", res.MatchedID, res.Confidence)
			}
			fmt.Printf("%5d  energy=%.4f zcr=%.3f active=%d pending=%d stability=%.2f match=%s\n",
				i, res.Features.Energy, res.Features.ZCR, res.ActiveCount, res.PendingCount, res.Stability, matched)
		}

		if *approveAfter > 0 {
			for _, p := range model.Snapshot().Pending {
				if p.Observations >= *approveAfter {
					model.Approve(p.ID)
				}
			}
		}
		clock = clock.Add(frameDuration)
	}

	status := model.Snapshot()
	fmt.Fprintf(os.Stderr, "\n%d active, %d pending after %d frames\n", len(status.Active), len(status.Pending), len(frames))
	for _, a := range status.Active {
		fmt.Fprintf(os.Stderr, "  active  %s strength=%.2f observations=%d\n", a.ID, a.Strength, a.Observations)
	}
	for _, p := range status.Pending {
		fmt.Fprintf(os.Stderr, "  pending %s observations=%d age=%.1fs\n", p.ID, p.Observations, p.AgeSeconds)
	}
}

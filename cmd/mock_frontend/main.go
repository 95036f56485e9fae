package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"noise-lab/audio"
	"noise-lab/identity"
	"noise-lab/models"
)

// segment is a stretch of synthetic signal streamed as consecutive frames.
type segment struct {
	name   string
	frames int
	gen    func(n int) []float32
}

func main() {
	endpoint := flag.String("url", "ws://localhost:8000/ws/audio", "Audio stream endpoint")
	admin := flag.String("admin", "http://localhost:8000/admin", "Admin base URL (used with -approve)")
	sampleRate := flag.Int("rate", 44100, "Sample rate of the generated signal")
	frameSize := flag.Int("frame", 4096, "Samples per frame")
	frames := flag.Int("frames", 20, "Frames per segment")
	intensity := flag.Float64("intensity", 0, "Noise intensity to request from the server")
	jitter := flag.Float64("jitter", 0, "Shift probability to request from the server")
	approve := flag.Bool("approve", false, "Approve every pending identity after the first pass")
	delay := flag.Duration("delay", 0, "Delay between frames (0 streams as fast as possible)")
	seed := flag.Uint64("seed", 1, "Seed for the noise segment")
	flag.Parse()

	rng := rand.New(rand.NewPCG(*seed, *seed))
	segments := []segment{
		{"hum 120Hz", *frames, func(n int) []float32 { return audio.Sine(120, 0.6, *sampleRate, n) }},
		{"silence", *frames / 2, audio.Silence},
		{"whistle 3kHz", *frames, func(n int) []float32 { return audio.Sine(3000, 0.4, *sampleRate, n) }},
		{"hiss", *frames, func(n int) []float32 { return audio.WhiteNoise(0.5, n, rng) }},
	}

	conn, _, err := websocket.DefaultDialer.Dial(*endpoint, nil)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *endpoint, err)
	}
	defer conn.Close()

	if *intensity > 0 || *jitter > 0 {
		cfg := models.ConfigMessage{Type: models.MessageTypeConfig, Intensity: *intensity, Jitter: *jitter}
		if err := conn.WriteJSON(cfg); err != nil {
			log.Fatalf("failed to send config: %v", err)
		}
		fmt.Printf("requested intensity=%.2f jitter=%.2f\n", *intensity, *jitter)
	}

	fmt.Printf("Streaming to %s (%d Hz, %d samples/frame)\n\n", *endpoint, *sampleRate, *frameSize)
	if err := streamSegments(conn, segments, *frameSize, *delay); err != nil {
		log.Fatalf("stream failed: %v", err)
	}

	if !*approve {
		return
	}

	approved, err := approvePending(*admin)
	if err != nil {
		log.Fatalf("approve failed: %v", err)
	}
	fmt.Printf("\napproved %d identities, replaying\n\n", approved)
	if err := streamSegments(conn, segments, *frameSize, *delay); err != nil {
		log.Fatalf("stream failed: %v", err)
	}
}

func streamSegments(conn *websocket.Conn, segments []segment, frameSize int, delay time.Duration) error {
	for _, seg := range segments {
		matches := map[string]int{}
		var last identity.Result

		for i := 0; i < seg.frames; i++ {
			frame := audio.EncodeFrame(seg.gen(frameSize))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}

			res, err := readMetrics(conn)
			if err != nil {
				return err
			}
			if res.MatchedID != "" {
				matches[res.MatchedID]++
			}
			last = res

			if delay > 0 {
				time.Sleep(delay)
			}
		}

		fmt.Printf("→ %-13s energy=%.4f zcr=%.3f bands=%.2f/%.2f/%.2f active=%d pending=%d",
			seg.name, last.Features.Energy, last.Features.ZCR,
			last.Features.Low, last.Features.Mid, last.Features.High,
			last.ActiveCount, last.PendingCount)
		if len(matches) > 0 {
			parts := make([]string, 0, len(matches))
			for id, n := range matches {
				parts = append(parts, fmt.Sprintf("%s×%d", id, n))
			}
			fmt.Printf(" matched=%s", strings.Join(parts, ","))
		}
		fmt.Println()
	}
	return nil
}

func readMetrics(conn *websocket.Conn) (identity.Result, error) {
	var msg struct {
		Type    string          `json:"type"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return identity.Result{}, fmt.Errorf("read reply: %w", err)
	}
	if msg.Type == models.MessageTypeError {
		return identity.Result{}, fmt.Errorf("server error: %s", msg.Message)
	}

	var res struct {
		identity.Result
		MatchedID *string `json:"current_identity_id"`
	}
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return identity.Result{}, fmt.Errorf("decode metrics: %w", err)
	}
	if res.MatchedID != nil {
		res.Result.MatchedID = *res.MatchedID
	}
	return res.Result, nil
}

func approvePending(base string) (int, error) {
	resp, err := http.Get(base + "/status")
	if err != nil {
		return 0, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	var status identity.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return 0, fmt.Errorf("decode status: %w", err)
	}

	approved := 0
	for _, p := range status.Pending {
		r, err := http.Post(base+"/approve/"+p.ID, "application/json", nil)
		if err != nil {
			return approved, fmt.Errorf("approve %s: %w", p.ID, err)
		}
		var body models.ApproveResponse
		err = json.NewDecoder(r.Body).Decode(&body)
		r.Body.Close()
		if err != nil || body.NewID == nil {
			fmt.Printf("   %s: %s\n", p.ID, body.Status)
			continue
		}
		fmt.Printf("   %s → %s (%d observations)\n", p.ID, *body.NewID, p.Observations)
		approved++
	}
	return approved, nil
}

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/eventstore"
	"github.com/kestrelops/kestrel/internal/gate"
	"github.com/kestrelops/kestrel/internal/session"
)

// #region input-line
// trackLine is one interaction fed on stdin, JSONL, one per line. A null
// scored field models a failed scoring pass and escalates.
type trackLine struct {
	SessionID string             `json:"session_id,omitempty"`
	Category  string             `json:"category,omitempty"`
	Input     json.RawMessage    `json:"input,omitempty"`
	Scored    *gate.ScoredOutput `json:"scored"`
}

// #endregion input-line

// #region main
func main() {
	configPath := flag.String("config", envOr("KESTREL_CONFIG", ""), "path to kestrel.yaml")
	dbPath := flag.String("db", "", "override store path from config")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("load config", "err", err)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	store, err := eventstore.NewStore(cfg.Store.Path)
	if err != nil {
		log.Fatalw("open store", "path", cfg.Store.Path, "err", err)
	}
	defer store.Close()

	g := gate.NewGate(cfg.Gate, store)
	log.Infow("track ready", "db", cfg.Store.Path, "threshold", cfg.Gate.ConfidenceThreshold)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line trackLine
		if err := json.Unmarshal(raw, &line); err != nil {
			log.Errorw("parse line", "err", err)
			continue
		}

		sessID, decision, err := track(store, g, line)
		if err != nil {
			log.Errorw("track interaction", "session", line.SessionID, "err", err)
			continue
		}

		out := map[string]interface{}{
			"session_id": sessID,
			"escalate":   decision.Escalate,
			"confidence": decision.Confidence,
			"threshold":  decision.Threshold,
		}
		if decision.Reason != "" {
			out["reason"] = decision.Reason
		}
		enc, _ := json.Marshal(out)
		fmt.Println(string(enc))
	}
	if err := scanner.Err(); err != nil {
		log.Fatalw("read stdin", "err", err)
	}
}

// #endregion main

// #region track
// track records one interaction's full event sequence and runs the gate.
func track(store *eventstore.Store, g *gate.Gate, line trackLine) (string, gate.EscalationDecision, error) {
	base := time.Now().UTC()

	sess, err := store.CreateSession(line.SessionID, line.Input, base)
	if err != nil {
		return "", gate.EscalationDecision{}, err
	}

	steps := []session.Event{
		{SessionID: sess.ID, Timestamp: base, Type: session.EventInputCaptured, Payload: line.Input},
		{SessionID: sess.ID, Timestamp: base.Add(1 * time.Millisecond), Type: session.EventModelCallIssued},
		{SessionID: sess.ID, Timestamp: base.Add(2 * time.Millisecond), Type: session.EventModelCallCompleted},
	}
	if line.Scored != nil {
		body, err := json.Marshal(line.Scored)
		if err != nil {
			return sess.ID, gate.EscalationDecision{}, fmt.Errorf("marshal scored output: %w", err)
		}
		steps = append(steps, session.Event{
			SessionID: sess.ID,
			Timestamp: base.Add(3 * time.Millisecond),
			Type:      session.EventOutputProduced,
			Payload:   body,
		})
	}
	for _, ev := range steps {
		if err := store.Append(ev); err != nil {
			return sess.ID, gate.EscalationDecision{}, err
		}
	}

	decision, _, err := g.Apply(sess.ID, line.Category, line.Scored, base.Add(4*time.Millisecond))
	return sess.ID, decision, err
}

// #endregion track

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

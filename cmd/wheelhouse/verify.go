package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

// VerifyCmd recomputes a round's outcome from its revealed secret so anyone
// can check the house committed to the result before bets opened.
type VerifyCmd struct {
	Secret   string `kong:"arg,help='Revealed secret from the round results'"`
	Hash     string `kong:"arg,help='Commitment hash published at round start'"`
	RoundID  string `kong:"help='Round ID, required to recompute the outcome'"`
	Sequence uint64 `kong:"help='Round sequence number'"`

	Kind          string  `kong:"help='Game kind: fixed_phase or escalating'"`
	Slots         int     `kong:"default='37',help='Wheel slot count'"`
	HouseEdge     float64 `kong:"default='0.03',help='Crash house edge'"`
	MaxCrashPoint float64 `kong:"default='1000',help='Crash point ceiling'"`
}

func (c *VerifyCmd) Run() error {
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.InfoLevel})

	if !round.VerifyCommitment(c.Secret, c.Hash) {
		logger.Error("Commitment mismatch", "expected", c.Hash, "computed", round.HashSecret(c.Secret))
		return fmt.Errorf("secret does not match commitment hash")
	}
	logger.Info("Commitment verified", "hash", c.Hash)

	if c.Kind == "" {
		return nil
	}
	if c.RoundID == "" {
		return fmt.Errorf("--round-id is required to recompute the outcome")
	}

	in := round.PublicInputs{RoundID: c.RoundID, Sequence: c.Sequence}
	switch round.Kind(c.Kind) {
	case round.KindFixedPhase:
		out := round.WheelStrategy{Slots: c.Slots}.Settle(c.Secret, in)
		logger.Info("Wheel outcome", "round", c.RoundID, "slot", out.Index)
	case round.KindEscalating:
		out := round.CrashStrategy{HouseEdge: c.HouseEdge, MaxPoint: c.MaxCrashPoint}.Settle(c.Secret, in)
		logger.Info("Crash outcome", "round", c.RoundID, "crash_point", fmt.Sprintf("%.2fx", out.CrashPoint))
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}

	return nil
}

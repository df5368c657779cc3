package round

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// PublicInputs are the round-scoped values mixed into outcome derivation.
// They are broadcast with every round, so any observer holding the revealed
// secret can re-derive the outcome.
type PublicInputs struct {
	RoundID  string
	Sequence uint64
}

func (in PublicInputs) message() []byte {
	return []byte(fmt.Sprintf("%s|%d", in.RoundID, in.Sequence))
}

// Strategy produces a provably-fair outcome for one round kind.
//
// Commit is called at round creation; Settle must be a pure function of the
// secret and the public inputs so third parties can replay it.
type Strategy interface {
	Commit() (*Commitment, error)
	Settle(secret string, in PublicInputs) Outcome
}

// NewCommitment draws a 32-byte secret from crypto/rand and returns it with
// its SHA-256 hash. The hash is published before any bet is accepted.
func NewCommitment() (*Commitment, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	return &Commitment{secret: secret, Hash: HashSecret(secret)}, nil
}

// HashSecret returns the hex SHA-256 of a secret string. Published as the
// commitment hash; recomputable by anyone after reveal.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether the secret matches a published hash.
func VerifyCommitment(secret, hash string) bool {
	return HashSecret(secret) == hash
}

// deriveBits computes HMAC-SHA256(secret, roundID|sequence) and returns the
// first 8 bytes as a big-endian uint64. Both strategies map outcomes from
// these 64 bits so the derivation formula stays identical across games.
func deriveBits(secret string, in PublicInputs) uint64 {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(in.message())
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// deriveUnit maps the derived bits to [0, 1).
func deriveUnit(secret string, in PublicInputs) float64 {
	return float64(deriveBits(secret, in)) / float64(1<<63) / 2
}

// WheelStrategy settles a discrete wheel spin: the derived 64 bits taken
// modulo the slot count.
type WheelStrategy struct {
	Slots int
}

func (s WheelStrategy) Commit() (*Commitment, error) { return NewCommitment() }

func (s WheelStrategy) Settle(secret string, in PublicInputs) Outcome {
	slots := s.Slots
	if slots <= 0 {
		slots = 37
	}
	return Outcome{Index: int(deriveBits(secret, in) % uint64(slots))}
}

// CrashStrategy settles a crash point: u in [0,1) mapped through
// (1-edge)/(1-u), truncated to cents, clamped to [1.00, MaxPoint]. Values of
// u below the house edge therefore bust instantly at 1.00.
type CrashStrategy struct {
	HouseEdge float64
	MaxPoint  float64
}

func (s CrashStrategy) Commit() (*Commitment, error) { return NewCommitment() }

func (s CrashStrategy) Settle(secret string, in PublicInputs) Outcome {
	edge := s.HouseEdge
	if edge <= 0 || edge >= 1 {
		edge = 0.03
	}
	maxPoint := s.MaxPoint
	if maxPoint < 1 {
		maxPoint = 1000
	}

	u := deriveUnit(secret, in)
	point := (1 - edge) / (1 - u)
	point = math.Floor(point*100) / 100
	if point < 1 {
		point = 1
	}
	if point > maxPoint {
		point = maxPoint
	}
	return Outcome{CrashPoint: point}
}

// GrowthAt returns the live multiplier after n ticks of the running phase:
// floor*(1+rate)^n. A pure function of the tick count, so a round is exactly
// replayable from its archived record regardless of wall-clock tick jitter.
// Rounding to cents is a display concern and happens at the edge.
func GrowthAt(floor, rate float64, n uint64) float64 {
	if floor < 1 {
		floor = 1
	}
	return floor * math.Pow(1+rate, float64(n))
}

package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/highway/state"
)

// GenesisDoc defines the initial validator set and scheduler parameters a
// node starts from.
type GenesisDoc struct {
	ChainID       string             `json:"chain_id"`
	GenesisTime   time.Time          `json:"genesis_time"`
	Validators    []GenesisValidator `json:"validators"`
	AppStateRoot  string             `json:"app_state_root"`
	HighwayParams HighwayParams      `json:"highway_params"`
}

// GenesisValidator describes a validator in the genesis state. Its position
// in the Validators slice is its model.ValidatorIndex.
type GenesisValidator struct {
	PubKey string `json:"pub_key"`
	Weight uint64 `json:"weight"`
	Name   string `json:"name"`
}

// HighwayParams holds genesis-level scheduler parameters.
type HighwayParams struct {
	RoundExp      model.RoundExponent `json:"round_exp"`
	Seed          uint64              `json:"seed"`
	MaxValidators int                 `json:"max_validators"`
}

// LoadGenesis reads and validates a genesis file from the given path.
func LoadGenesis(path string) (*GenesisDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read file: %w", err)
	}

	var gen GenesisDoc
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("genesis: parse JSON: %w", err)
	}

	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	return &gen, nil
}

// Validate checks the genesis document for structural validity.
func (g *GenesisDoc) Validate() error {
	if g.ChainID == "" {
		return errors.New("chain_id must not be empty")
	}
	if g.GenesisTime.IsZero() {
		return errors.New("genesis_time must not be zero")
	}
	if len(g.Validators) == 0 {
		return errors.New("must have at least one validator")
	}

	for i, v := range g.Validators {
		if v.PubKey == "" {
			return fmt.Errorf("validator %d: pub_key must not be empty", i)
		}
		if v.Weight == 0 {
			return fmt.Errorf("validator %d: weight must be > 0", i)
		}

		pubKeyBytes, err := hex.DecodeString(v.PubKey)
		if err != nil {
			return fmt.Errorf("validator %d: invalid pub_key hex: %w", i, err)
		}
		if len(pubKeyBytes) != 32 {
			return fmt.Errorf("validator %d: pub_key must be 32 bytes, got %d", i, len(pubKeyBytes))
		}
	}

	if g.HighwayParams.MaxValidators <= 0 {
		return errors.New("highway_params.max_validators must be > 0")
	}
	if len(g.Validators) > g.HighwayParams.MaxValidators {
		return fmt.Errorf("too many validators: got %d, max %d",
			len(g.Validators), g.HighwayParams.MaxValidators)
	}
	if g.HighwayParams.RoundExp.RoundLength() < 3 {
		return fmt.Errorf("highway_params.round_exp must yield a round length of at least 3, got %d",
			g.HighwayParams.RoundExp.RoundLength())
	}

	return nil
}

// ToState builds a state.State seeded with the genesis validator set,
// ready for an ActiveValidator to run against.
func (g *GenesisDoc) ToState() (*state.State, error) {
	weights := make([]state.Weight, len(g.Validators))
	for i, gv := range g.Validators {
		weights[i] = state.Weight(gv.Weight)
	}
	return state.New(weights, g.HighwayParams.Seed, g.HighwayParams.RoundExp), nil
}

// PublicKeys returns the genesis validators' public keys indexed by their
// model.ValidatorIndex, for signature verification of incoming votes.
func (g *GenesisDoc) PublicKeys() ([][32]byte, error) {
	keys := make([][32]byte, len(g.Validators))
	for i, gv := range g.Validators {
		pubKeyBytes, err := hex.DecodeString(gv.PubKey)
		if err != nil {
			return nil, fmt.Errorf("validator %d: invalid pub_key hex: %w", i, err)
		}
		copy(keys[i][:], pubKeyBytes)
	}
	return keys, nil
}

// AppStateRootHash parses the hex-encoded app state root, if present.
func (g *GenesisDoc) AppStateRootHash() ([32]byte, error) {
	if g.AppStateRoot == "" {
		return [32]byte{}, nil
	}
	b, err := hex.DecodeString(g.AppStateRoot)
	if err != nil {
		return [32]byte{}, fmt.Errorf("invalid app_state_root hex: %w", err)
	}
	if len(b) != 32 {
		return [32]byte{}, fmt.Errorf("app_state_root must be 32 bytes, got %d", len(b))
	}
	var h [32]byte
	copy(h[:], b)
	return h, nil
}

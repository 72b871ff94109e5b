package highway_test

import (
	"testing"

	"github.com/casper-network/highway/internal/crypto"
	"github.com/casper-network/highway/internal/highway"
	"github.com/casper-network/highway/internal/highway/finality"
	"github.com/casper-network/highway/internal/highway/model"
	"github.com/casper-network/highway/internal/highway/state"
)

const (
	aliceIdx model.ValidatorIndex = 0
	bobIdx   model.ValidatorIndex = 1
)

func newTestSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	_, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return crypto.NewSigner(priv)
}

func effectKinds(effects []model.Effect) []model.EffectKind {
	kinds := make([]model.EffectKind, len(effects))
	for i, e := range effects {
		kinds[i] = e.Kind
	}
	return kinds
}

func requireEffects(t *testing.T, got []model.Effect, want ...model.EffectKind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("effect count: got %d (%v), want %d (%v)", len(got), effectKinds(got), len(want), want)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Fatalf("effect[%d] kind: got %v, want %v", i, got[i].Kind, k)
		}
	}
}

// TestActiveValidatorSeedScenario reproduces spec §8's concrete end-to-end
// scenario: two validators, ALICE (weight 3) and BOB (weight 4), round_exp
// 4 (L=16, witness_offset=10), seed 0.
func TestActiveValidatorSeedScenario(t *testing.T) {
	const roundExp model.RoundExponent = 4

	st := state.New([]state.Weight{3, 4}, 0, roundExp)
	aliceSigner := newTestSigner(t)
	bobSigner := newTestSigner(t)

	if st.Leader(416) != aliceIdx {
		t.Fatalf("expected ALICE to lead round 416, got %d", st.Leader(416))
	}
	if st.Leader(432) != bobIdx {
		t.Fatalf("expected BOB to lead round 432, got %d", st.Leader(432))
	}

	fd := finality.NewDetector(roundExp, 2)

	// 1. Construct ALICE's scheduler at t=410.
	alice, effects := highway.New(aliceIdx, aliceSigner, roundExp, 410, st, nil)
	requireEffects(t, effects, model.EffectScheduleTimer)
	if effects[0].Timer != 416 {
		t.Fatalf("ALICE initial timer: got %d, want 416", effects[0].Timer)
	}

	// 2. Construct BOB's scheduler at t=410.
	bob, effects := highway.New(bobIdx, bobSigner, roundExp, 410, st, nil)
	requireEffects(t, effects, model.EffectScheduleTimer)
	if effects[0].Timer != 426 {
		t.Fatalf("BOB initial timer: got %d, want 426", effects[0].Timer)
	}

	// 3. alice.handle_timer(415) -> [].
	effects = alice.HandleTimer(415, st)
	requireEffects(t, effects)

	// 4. alice.handle_timer(416) -> [ScheduleTimer(426), RequestNewBlock(416)].
	effects = alice.HandleTimer(416, st)
	requireEffects(t, effects, model.EffectScheduleTimer, model.EffectRequestNewBlock)
	if effects[0].Timer != 426 {
		t.Fatalf("ALICE reschedule at 416: got %d, want 426", effects[0].Timer)
	}
	if effects[1].Ctx.Timestamp != 416 {
		t.Fatalf("RequestNewBlock timestamp: got %d, want 416", effects[1].Ctx.Timestamp)
	}

	// 5. alice.propose(0xC0FFEE, ctx, state) -> one NewVertex.
	value := model.ConsensusValue{0xC0, 0xFF, 0xEE}
	effects = alice.Propose(value, effects[1].Ctx, st)
	requireEffects(t, effects, model.EffectNewVertex)
	propVote := effects[0].Vote
	if propVote.Vote.Creator != aliceIdx {
		t.Fatalf("proposal creator: got %d, want ALICE", propVote.Vote.Creator)
	}
	if propVote.Vote.Value == nil || *propVote.Vote.Value != value {
		t.Fatal("proposal should carry the proposed value")
	}
	if propVote.Vote.SeqNumber != 0 {
		t.Fatalf("proposal seq_number: got %d, want 0", propVote.Vote.SeqNumber)
	}
	propHash := aliceSigner.Hash(propVote)
	st.AddVote(propVote, propHash)

	// 6. alice.on_new_vote(prop_hash, 417, state) -> [] (creator == self).
	effects = alice.OnNewVote(propHash, 417, st)
	requireEffects(t, effects)

	// 7. bob.on_new_vote(prop_hash, 419, state) -> one confirmation.
	effects = bob.OnNewVote(propHash, 419, st)
	requireEffects(t, effects, model.EffectNewVertex)
	confirmVote := effects[0].Vote
	if confirmVote.Vote.Creator != bobIdx {
		t.Fatalf("confirmation creator: got %d, want BOB", confirmVote.Vote.Creator)
	}
	if confirmVote.Vote.Value != nil {
		t.Fatal("confirmation must not carry a value")
	}
	if confirmVote.Vote.SeqNumber != 0 {
		t.Fatalf("confirmation seq_number: got %d, want 0", confirmVote.Vote.SeqNumber)
	}
	confirmHash := bobSigner.Hash(confirmVote)
	st.AddVote(confirmVote, confirmHash)

	// 8. bob.handle_timer(426) -> [ScheduleTimer(432), NewVertex(witness)].
	effects = bob.HandleTimer(426, st)
	requireEffects(t, effects, model.EffectScheduleTimer, model.EffectNewVertex)
	if effects[0].Timer != 432 {
		t.Fatalf("BOB reschedule at 426: got %d, want 432", effects[0].Timer)
	}
	bobWitness := effects[1].Vote
	bobWitnessHash := bobSigner.Hash(bobWitness)
	st.AddVote(bobWitness, bobWitnessHash)

	// 9. Finality check after step 8: not yet finalized.
	outcome := fd.Check(propHash, st)
	if outcome.Finalized {
		t.Fatal("expected not finalized after BOB's witness alone")
	}

	// 10. alice.handle_timer(426) -> [ScheduleTimer(442), NewVertex(witness)].
	effects = alice.HandleTimer(426, st)
	requireEffects(t, effects, model.EffectScheduleTimer, model.EffectNewVertex)
	if effects[0].Timer != 442 {
		t.Fatalf("ALICE reschedule at 426: got %d, want 442", effects[0].Timer)
	}
	aliceWitness := effects[1].Vote
	aliceWitnessHash := aliceSigner.Hash(aliceWitness)
	st.AddVote(aliceWitness, aliceWitnessHash)

	// 11. Finality check: Finalized{value: 0xC0FFEE, equivocators: {}, timestamp: 416}.
	outcome = fd.Check(propHash, st)
	if !outcome.Finalized {
		t.Fatal("expected finality after both witnesses")
	}
	if outcome.Value != value {
		t.Fatalf("finalized value: got %x, want %x", outcome.Value, value)
	}
	if len(outcome.Equivocators) != 0 {
		t.Fatalf("expected no equivocators, got %v", outcome.Equivocators)
	}
	if outcome.Timestamp != 416 {
		t.Fatalf("finalized timestamp: got %d, want 416", outcome.Timestamp)
	}
}

// TestHandleTimerAtExactlyNextTimer verifies that a timer firing at
// exactly next_timer is treated as on-landmark, per spec §8 boundary cases.
func TestHandleTimerAtExactlyNextTimer(t *testing.T) {
	const roundExp model.RoundExponent = 4
	st := state.New([]state.Weight{3, 4}, 0, roundExp)
	signer := newTestSigner(t)

	av, effects := highway.New(aliceIdx, signer, roundExp, 410, st, nil)
	requireEffects(t, effects, model.EffectScheduleTimer)

	effects = av.HandleTimer(416, st)
	if len(effects) == 0 {
		t.Fatal("expected on-landmark behavior at t == next_timer")
	}
}

// TestProposeStaleContextSkips verifies propose returns no effect when the
// context timestamp is behind the equivocation floor.
func TestProposeStaleContextSkips(t *testing.T) {
	const roundExp model.RoundExponent = 4
	st := state.New([]state.Weight{3, 4}, 0, roundExp)
	signer := newTestSigner(t)

	av, _ := highway.New(aliceIdx, signer, roundExp, 410, st, nil)
	_ = av.HandleTimer(416, st)

	effects := av.Propose(model.ConsensusValue{}, model.BlockContext{Timestamp: 416}, st)
	requireEffects(t, effects, model.EffectNewVertex)
	vote := effects[0].Vote
	hash := signer.Hash(vote)
	st.AddVote(vote, hash)

	// A context timestamp earlier than our own vote's timestamp (400 < 416)
	// falls before earliest_vote_time, so it is stale.
	stale := av.Propose(model.ConsensusValue{}, model.BlockContext{Timestamp: 400}, st)
	requireEffects(t, stale)
}

// TestOnNewVoteRejectsFaultyLeaderProposal verifies on_new_vote returns
// empty for a proposal from an already-faulty leader.
func TestOnNewVoteRejectsFaultyLeaderProposal(t *testing.T) {
	const roundExp model.RoundExponent = 4
	st := state.New([]state.Weight{3, 4}, 0, roundExp)
	aliceSigner := newTestSigner(t)
	bobSigner := newTestSigner(t)

	alice, _ := highway.New(aliceIdx, aliceSigner, roundExp, 410, st, nil)
	bob, _ := highway.New(bobIdx, bobSigner, roundExp, 410, st, nil)

	effects := alice.HandleTimer(416, st)
	requireEffects(t, effects, model.EffectScheduleTimer, model.EffectRequestNewBlock)

	value := model.ConsensusValue{0xC0, 0xFF, 0xEE}
	effects = alice.Propose(value, effects[1].Ctx, st)
	propVote := effects[0].Vote
	propHash := aliceSigner.Hash(propVote)
	st.AddVote(propVote, propHash)

	st.MarkFaulty(aliceIdx)

	effects = bob.OnNewVote(propHash, 419, st)
	requireEffects(t, effects)
}

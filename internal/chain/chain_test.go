package chain

import (
	"testing"

	"github.com/klingnet-chain/zkchain/config"
	"github.com/klingnet-chain/zkchain/internal/kv"
	"github.com/klingnet-chain/zkchain/pkg/block"
	"github.com/klingnet-chain/zkchain/pkg/crypto"
	"github.com/klingnet-chain/zkchain/pkg/tx"
	"github.com/klingnet-chain/zkchain/pkg/types"
	"github.com/klingnet-chain/zkchain/pkg/zk"
)

// easyTarget is the maximum possible target, so MeetsTarget always
// passes regardless of nonce; tests that care about proof-of-work
// mechanics set a real target instead.
func easyTarget() types.Hash {
	var h types.Hash
	for i := range h {
		h[i] = 0xff
	}
	return h
}

func testGenesis(t *testing.T, alloc map[string]uint64) *config.Genesis {
	t.Helper()
	g := &config.Genesis{
		ChainID:       "test-chain",
		ChainName:     "Test Chain",
		Timestamp:     1000,
		InitialTarget: easyTarget(),
		Alloc:         alloc,
		Params: config.Params{
			TotalSupply:            1_000_000,
			RewardRatio:            1000,
			BlockTime:              10,
			DifficultyCalcInterval: 4,
			MedianTimestampCount:   3,
			PowBaseKey:             types.Hash{0xaa},
			PowKeyChangeDelay:      8,
			PowKeyChangeInterval:   4,
			MaxDeltaSize:           1_000_000,
			NumStateDeltasKeep:     8,
		},
	}
	return g
}

func newTestChain(t *testing.T, alloc map[string]uint64) *Chain {
	t.Helper()
	c, err := New(kv.NewMemory(), testGenesis(t, alloc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func testKeypair(t *testing.T) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var pk [types.PubKeySize]byte
	copy(pk[:], priv.PublicKey())
	return priv, types.NewPublicKeyAddress(pk)
}

func signTx(t *testing.T, priv *crypto.PrivateKey, transaction *tx.Transaction) {
	t.Helper()
	msg := crypto.Hash(transaction.SigningBytes())
	sig, err := priv.Sign(msg[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	transaction.Sig = tx.Signed(sig)
}

func mineAndApply(t *testing.T, c *Chain, timestamp uint64, mempool []tx.TransactionAndDelta, rewardAddr types.Address) *BlockAndPatch {
	t.Helper()
	bp, err := c.DraftBlock(timestamp, mempool, rewardAddr)
	if err != nil {
		t.Fatalf("DraftBlock: %v", err)
	}
	if err := c.ApplyBlock(bp.Block, true); err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	return bp
}

func TestNew_AppliesGenesisOnce(t *testing.T) {
	_, addr := testKeypair(t)
	c := newTestChain(t, map[string]uint64{addr.String(): 500})

	height, err := c.GetHeight()
	if err != nil {
		t.Fatalf("GetHeight: %v", err)
	}
	if height != 1 {
		t.Fatalf("height after genesis = %d, want 1", height)
	}

	acc, err := c.GetAccount(addr)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc.Balance != 500 {
		t.Errorf("allocated balance = %d, want 500", acc.Balance)
	}

	treasury, err := c.GetAccount(types.Treasury())
	if err != nil {
		t.Fatalf("GetAccount(treasury): %v", err)
	}
	if treasury.Balance != 1_000_000-500 {
		t.Errorf("treasury balance = %d, want %d", treasury.Balance, 1_000_000-500)
	}
}

func TestDraftAndApplyBlock_RegularSend(t *testing.T) {
	priv, src := testKeypair(t)
	_, dst := testKeypair(t)
	_, miner := testKeypair(t)
	c := newTestChain(t, map[string]uint64{src.String(): 1000})

	send := &tx.Transaction{
		Src:   src,
		Nonce: 1,
		Data:  tx.RegularSend(dst, 100),
		Fee:   5,
	}
	signTx(t, priv, send)

	mineAndApply(t, c, 1010, []tx.TransactionAndDelta{{Tx: *send}}, miner)

	height, err := c.GetHeight()
	if err != nil || height != 2 {
		t.Fatalf("height = %d, err = %v, want 2", height, err)
	}

	srcAcc, _ := c.GetAccount(src)
	if srcAcc.Balance != 1000-100-5 {
		t.Errorf("src balance = %d, want %d", srcAcc.Balance, 1000-100-5)
	}
	dstAcc, _ := c.GetAccount(dst)
	if dstAcc.Balance != 100 {
		t.Errorf("dst balance = %d, want 100", dstAcc.Balance)
	}
	minerAcc, _ := c.GetAccount(miner)
	if minerAcc.Balance == 0 {
		t.Error("miner should have been paid a reward")
	}
}

func TestApplyTx_RejectsBadSignature(t *testing.T) {
	_, src := testKeypair(t)
	_, dst := testKeypair(t)
	_, miner := testKeypair(t)
	c := newTestChain(t, map[string]uint64{src.String(): 1000})

	bad := tx.Transaction{
		Src:   src,
		Nonce: 1,
		Data:  tx.RegularSend(dst, 100),
		Fee:   5,
		Sig:   tx.Signed([]byte{1, 2, 3}),
	}

	selected, err := c.SelectTransactions([]tx.TransactionAndDelta{{Tx: bad}})
	if err != nil {
		t.Fatalf("SelectTransactions: %v", err)
	}
	if len(selected) != 0 {
		t.Error("a badly signed transaction must not be selected into a draft block")
	}
	_ = miner
}

func TestApplyTx_RejectsInsufficientBalance(t *testing.T) {
	priv, src := testKeypair(t)
	_, dst := testKeypair(t)
	c := newTestChain(t, map[string]uint64{src.String(): 10})

	overspend := &tx.Transaction{
		Src:   src,
		Nonce: 1,
		Data:  tx.RegularSend(dst, 1000),
		Fee:   1,
	}
	signTx(t, priv, overspend)

	ov := kv.NewOverlay(c.store)
	if _, err := c.applyTx(ov, overspend, false); err != ErrBalanceInsufficient {
		t.Errorf("applyTx error = %v, want ErrBalanceInsufficient", err)
	}
}

func TestApplyTx_RejectsWrongNonce(t *testing.T) {
	priv, src := testKeypair(t)
	_, dst := testKeypair(t)
	c := newTestChain(t, map[string]uint64{src.String(): 1000})

	wrongNonce := &tx.Transaction{
		Src:   src,
		Nonce: 7,
		Data:  tx.RegularSend(dst, 1),
		Fee:   1,
	}
	signTx(t, priv, wrongNonce)

	ov := kv.NewOverlay(c.store)
	if _, err := c.applyTx(ov, wrongNonce, false); err != ErrInvalidTransactionNonce {
		t.Errorf("applyTx error = %v, want ErrInvalidTransactionNonce", err)
	}
}

func TestApplyBlock_FeeIsConservedNotBurned(t *testing.T) {
	priv, src := testKeypair(t)
	_, dst := testKeypair(t)
	_, miner := testKeypair(t)
	c := newTestChain(t, map[string]uint64{src.String(): 1000})

	send := &tx.Transaction{
		Src:   src,
		Nonce: 1,
		Data:  tx.RegularSend(dst, 100),
		Fee:   7,
	}
	signTx(t, priv, send)
	mineAndApply(t, c, 1010, []tx.TransactionAndDelta{{Tx: *send}}, miner)

	srcAcc, _ := c.GetAccount(src)
	dstAcc, _ := c.GetAccount(dst)
	minerAcc, _ := c.GetAccount(miner)
	treasury, _ := c.GetAccount(types.Treasury())

	total := srcAcc.Balance + dstAcc.Balance + minerAcc.Balance + treasury.Balance
	if total != types.Money(c.genesis.Params.TotalSupply) {
		t.Errorf("sum of balances = %d, want %d (the fee must land back in the treasury, not vanish)", total, c.genesis.Params.TotalSupply)
	}
}

func TestRollbackBlock_RestoresPriorState(t *testing.T) {
	priv, src := testKeypair(t)
	_, dst := testKeypair(t)
	_, miner := testKeypair(t)
	c := newTestChain(t, map[string]uint64{src.String(): 1000})

	beforeSrc, _ := c.GetAccount(src)

	send := &tx.Transaction{
		Src:   src,
		Nonce: 1,
		Data:  tx.RegularSend(dst, 100),
		Fee:   5,
	}
	signTx(t, priv, send)
	mineAndApply(t, c, 1010, []tx.TransactionAndDelta{{Tx: *send}}, miner)

	heightBefore, _ := c.GetHeight()

	if err := c.RollbackBlock(); err != nil {
		t.Fatalf("RollbackBlock: %v", err)
	}

	heightAfter, _ := c.GetHeight()
	if heightAfter != heightBefore-1 {
		t.Fatalf("height after rollback = %d, want %d", heightAfter, heightBefore-1)
	}

	afterSrc, _ := c.GetAccount(src)
	if afterSrc != beforeSrc {
		t.Errorf("src account after rollback = %+v, want %+v", afterSrc, beforeSrc)
	}
	dstAcc, _ := c.GetAccount(dst)
	if dstAcc.Balance != 0 {
		t.Errorf("dst balance after rollback = %d, want 0", dstAcc.Balance)
	}
}

func TestWillExtend_RequiresMoreWork(t *testing.T) {
	_, miner := testKeypair(t)
	c := newTestChain(t, nil)
	mineAndApply(t, c, 1010, nil, miner)

	tip, err := c.GetTip()
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}

	// A header identical in every PoW-relevant respect to the current tip
	// carries the same work, so it must not be judged an improvement.
	same := *tip
	if extend, err := c.WillExtend(1, []*block.Header{&same}, false); err == nil && extend {
		t.Error("an equal-work header must not be judged to extend the chain")
	}
}

func TestRetargetScale_ClampsToHalfAndDouble(t *testing.T) {
	cases := []struct {
		blockTime, avg, wantNum, wantDen uint64
	}{
		{10, 5, 1, 2},    // blocks arriving twice as fast as target: harder next time, clamp to 1/2
		{10, 40, 2, 1},   // blocks arriving way slower than target: easier next time, clamp to 2/1
		{10, 10, 10, 10}, // on target: no clamp, ratio is identity
		{10, 12, 12, 10}, // mild adjustment within [1/2, 2]: ratio is avg/BlockTime
	}
	for _, c := range cases {
		num, den := retargetScale(c.blockTime, c.avg)
		if num != c.wantNum || den != c.wantDen {
			t.Errorf("retargetScale(%d, %d) = %d/%d, want %d/%d", c.blockTime, c.avg, num, den, c.wantNum, c.wantDen)
		}
	}
}

func TestPowKey_RotatesAfterDelay(t *testing.T) {
	c := newTestChain(t, nil)

	// PowKey(delay+interval) keys off header interval, so mine blocks 1..4
	// for that header to exist. Evenly spaced at BlockTime, so no retarget
	// moves the easy target.
	_, miner := testKeypair(t)
	for i := uint64(1); i <= 4; i++ {
		mineAndApply(t, c, 1000+10*i, nil, miner)
	}

	key, err := c.PowKey(0)
	if err != nil {
		t.Fatalf("PowKey(0): %v", err)
	}
	if key != c.genesis.Params.PowBaseKey {
		t.Errorf("PowKey(0) = %x, want base key", key)
	}

	key, err = c.PowKey(c.genesis.Params.PowKeyChangeDelay - 1)
	if err != nil {
		t.Fatalf("PowKey(delay-1): %v", err)
	}
	if key != c.genesis.Params.PowBaseKey {
		t.Error("PowKey should still be the base key just before the delay elapses")
	}

	afterDelay, err := c.PowKey(c.genesis.Params.PowKeyChangeDelay)
	if err != nil {
		t.Fatalf("PowKey(delay): %v", err)
	}
	if afterDelay == c.genesis.Params.PowBaseKey {
		t.Error("PowKey should have rotated away from the base key once the delay has elapsed")
	}

	stillSame, err := c.PowKey(c.genesis.Params.PowKeyChangeDelay + c.genesis.Params.PowKeyChangeInterval - 1)
	if err != nil {
		t.Fatalf("PowKey(delay+interval-1): %v", err)
	}
	if stillSame != afterDelay {
		t.Error("PowKey should hold steady for a full rotation interval")
	}

	nextEpoch, err := c.PowKey(c.genesis.Params.PowKeyChangeDelay + c.genesis.Params.PowKeyChangeInterval)
	if err != nil {
		t.Fatalf("PowKey(delay+interval): %v", err)
	}
	if nextEpoch == afterDelay {
		t.Error("PowKey should rotate again at the next interval boundary")
	}
}

// compactTarget renders v as a target whose non-zero bits sit in the
// low 32 bits of the 256-bit hash space, mirroring the compact
// difficulty descriptors used to state worked retarget examples.
func compactTarget(v uint32) types.Hash {
	var h types.Hash
	h[types.HashSize-4] = byte(v >> 24)
	h[types.HashSize-3] = byte(v >> 16)
	h[types.HashSize-2] = byte(v >> 8)
	h[types.HashSize-1] = byte(v)
	return h
}

// TestNextDifficulty_MatchesWorkedRetargetScenario runs the worked
// retarget example through three DIFFICULTY_CALC_INTERVAL=3 windows:
// fast blocks tighten the target, a return to BLOCK_TIME pacing relaxes
// it back, and another burst of fast blocks tightens it again.
func TestNextDifficulty_MatchesWorkedRetargetScenario(t *testing.T) {
	_, miner := testKeypair(t)
	genesis := &config.Genesis{
		ChainID:       "retarget-scenario",
		ChainName:     "Retarget Scenario",
		Timestamp:     0,
		InitialTarget: compactTarget(0x00ffffff),
		Params: config.Params{
			TotalSupply:            1_000_000,
			RewardRatio:            1000,
			BlockTime:              60,
			DifficultyCalcInterval: 3,
			MedianTimestampCount:   3,
			PowBaseKey:             types.Hash{0xaa},
			PowKeyChangeDelay:      1000,
			PowKeyChangeInterval:   1000,
			MaxDeltaSize:           1_000_000,
			NumStateDeltasKeep:     8,
		},
	}
	c, err := New(kv.NewMemory(), genesis)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Targets this small are never met by the unsearched Nonce: 0 a
	// drafted block carries, so PoW is not checked here; this test is
	// only exercising the retarget arithmetic and its boundary wiring.
	timestamps := []uint64{40, 80, 120, 210, 300, 390, 391, 392, 393}
	wantTargetAtBlock := map[int]types.Hash{
		3: compactTarget(0x00aaaaaa), // blocks every 40s vs a 60s target: tighten
		6: compactTarget(0x00ffffff), // blocks every 90s vs a 60s target: relax back
		9: compactTarget(0x007fffff), // blocks every ~1s vs a 60s target: tighten again
	}

	for i, ts := range timestamps {
		bp, err := c.DraftBlock(ts, nil, miner)
		if err != nil {
			t.Fatalf("DraftBlock(%d): %v", ts, err)
		}
		if err := c.ApplyBlock(bp.Block, false); err != nil {
			t.Fatalf("ApplyBlock(%d): %v", ts, err)
		}
		blockNum := i + 1
		if want, ok := wantTargetAtBlock[blockNum]; ok {
			if bp.Block.Header.Pow.Target != want {
				t.Errorf("block %d target = %x, want %x", blockNum, bp.Block.Header.Pow.Target, want)
			}
		}
	}
}

func TestCreateContractUpdateFlow(t *testing.T) {
	priv, src := testKeypair(t)
	_, miner := testKeypair(t)
	c := newTestChain(t, map[string]uint64{src.String(): 1000})

	initial := zk.NewState().Compress(zk.StateModel{TreeDepth: 4})
	contract := &zk.Contract{
		Model:        zk.StateModel{TreeDepth: 4},
		InitialState: initial,
		Functions:    map[uint32]zk.VerifyingKey{1: {Kind: zk.VKDummy}},
	}

	create := &tx.Transaction{
		Src:   src,
		Nonce: 1,
		Data:  tx.CreateContract(contract),
		Fee:   1,
	}
	signTx(t, priv, create)
	cid := create.ContractID()

	// Creating a contract leaves it outdated (ApplyBlock only ever sees
	// the bare transaction body, never the side-channel state delta), so
	// a patch must be supplied out of band to catch the ledger up.
	emptyDelta := &zk.StateDelta{}
	bp1 := mineAndApply(t, c, 1010, []tx.TransactionAndDelta{{Tx: *create, StateDelta: emptyDelta}}, miner)

	account, err := c.GetAccount(src)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.Nonce != 1 {
		t.Fatalf("src nonce after create = %d, want 1", account.Nonce)
	}

	outdatedAfterCreate, err := c.GetOutdatedStates()
	if err != nil {
		t.Fatalf("GetOutdatedStates: %v", err)
	}
	if _, ok := outdatedAfterCreate[cid]; !ok {
		t.Fatal("contract should be outdated immediately after creation")
	}
	if err := c.UpdateStates(bp1.Patch); err != nil {
		t.Fatalf("UpdateStates: %v", err)
	}
	if outdated, err := c.GetOutdatedStates(); err != nil || len(outdated) != 0 {
		t.Fatalf("GetOutdatedStates after UpdateStates = %v, err %v, want empty", outdated, err)
	}

	// DraftBlock checks each patch on its fork, so the delta sent with the
	// update must actually take the state from initial to nextState.
	updateDelta := &zk.StateDelta{Changes: []zk.KeyChange{{Key: "k", NextValue: []byte{0x42}}}}
	next := zk.NewState()
	next.Data["k"] = []byte{0x42}
	nextState := next.Compress(zk.StateModel{TreeDepth: 4})
	proof := zk.DummyProve(initial, zk.CompressedState{}, nextState)
	update := &tx.Transaction{
		Src:   src,
		Nonce: 2,
		Data:  tx.Update(cid, 1, nextState, proof),
		Fee:   1,
	}
	signTx(t, priv, update)

	mineAndApply(t, c, 1020, []tx.TransactionAndDelta{{Tx: *update, StateDelta: updateDelta}}, miner)

	outdated, err := c.GetOutdatedStates()
	if err != nil {
		t.Fatalf("GetOutdatedStates: %v", err)
	}
	if got, ok := outdated[cid]; !ok || got != nextState {
		t.Errorf("outdated[cid] = %+v, ok %v, want %+v, true", got, ok, nextState)
	}
}

func TestExtend_AdoptsHeavierCompetingChain(t *testing.T) {
	_, miner := testKeypair(t)
	c := newTestChain(t, nil)

	// Canonical chain mines a single block past genesis.
	mineAndApply(t, c, 1010, nil, miner)
	height, err := c.GetHeight()
	if err != nil {
		t.Fatalf("GetHeight: %v", err)
	}
	if height != 2 {
		t.Fatalf("height = %d, want 2", height)
	}

	// A competing fork, built on a separate chain instance sharing
	// nothing with c, mines two blocks past genesis at the same
	// per-block target — strictly more accumulated work than canonical's
	// single block — then gets replayed as an external candidate.
	fork := newTestChain(t, nil)
	bp1 := mineAndApply(t, fork, 1011, nil, miner)
	bp2 := mineAndApply(t, fork, 1021, nil, miner)

	if err := c.Extend(1, []*block.Block{bp1.Block, bp2.Block}); err != nil {
		t.Fatalf("Extend: %v", err)
	}

	newTip, err := c.GetTip()
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if newTip.Hash() != bp2.Block.Header.Hash() {
		t.Error("chain should have adopted the replayed fork's tip")
	}
}

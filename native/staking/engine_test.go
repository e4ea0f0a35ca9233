package staking

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"stakehub/core/events"
	"stakehub/crypto"
	nativecommon "stakehub/native/common"
)

type mockState struct {
	pools     []*Pool
	positions map[string]*Position
}

func newMockState() *mockState {
	return &mockState{positions: make(map[string]*Position)}
}

func (m *mockState) key(poolID uint64, addr crypto.Address) string {
	return fmt.Sprintf("%d/%x", poolID, addr.Bytes())
}

func (m *mockState) PoolCount() (uint64, error) {
	return uint64(len(m.pools)), nil
}

func (m *mockState) GetPool(id uint64) (*Pool, error) {
	if id >= uint64(len(m.pools)) {
		return nil, nil
	}
	return m.pools[id], nil
}

func (m *mockState) PutPool(id uint64, pool *Pool) error {
	if id >= uint64(len(m.pools)) {
		return fmt.Errorf("mock: pool %d not found", id)
	}
	m.pools[id] = pool
	return nil
}

func (m *mockState) AppendPool(pool *Pool) (uint64, error) {
	m.pools = append(m.pools, pool)
	return uint64(len(m.pools) - 1), nil
}

func (m *mockState) GetPosition(poolID uint64, account crypto.Address) (*Position, error) {
	return m.positions[m.key(poolID, account)], nil
}

func (m *mockState) PutPosition(poolID uint64, account crypto.Address, pos *Position) error {
	m.positions[m.key(poolID, account)] = pos
	return nil
}

type fakeTokens struct {
	balances     map[string]map[string]*big.Int
	failTransfer bool
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{balances: make(map[string]map[string]*big.Int)}
}

func (f *fakeTokens) balance(token string, account crypto.Address) *big.Int {
	accounts, ok := f.balances[token]
	if !ok {
		accounts = make(map[string]*big.Int)
		f.balances[token] = accounts
	}
	key := string(account.Bytes())
	if accounts[key] == nil {
		accounts[key] = big.NewInt(0)
	}
	return accounts[key]
}

func (f *fakeTokens) mint(token string, account crypto.Address, amount int64) {
	bal := f.balance(token, account)
	bal.Add(bal, big.NewInt(amount))
}

func (f *fakeTokens) Transfer(token string, from, to crypto.Address, amount *big.Int) error {
	if f.failTransfer {
		return errors.New("fake: transfer failed")
	}
	fromBal := f.balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("fake: insufficient balance")
	}
	fromBal.Sub(fromBal, amount)
	toBal := f.balance(token, to)
	toBal.Add(toBal, amount)
	return nil
}

func (f *fakeTokens) TransferFrom(token string, _, from, to crypto.Address, amount *big.Int) error {
	return f.Transfer(token, from, to, amount)
}

func (f *fakeTokens) BalanceOf(token string, account crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(f.balance(token, account)), nil
}

type stuckPauses struct{ paused bool }

func (p stuckPauses) IsPaused(string) bool { return p.paused }

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.MustNewAddress(crypto.StakePrefix, raw)
}

const (
	testStakeToken  = "STAKE"
	testRewardToken = "SHB"
)

type testEnv struct {
	engine  *Engine
	state   *mockState
	tokens  *fakeTokens
	capture *events.Capture
	owner   crypto.Address
	vault   crypto.Address
	now     uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:   newMockState(),
		tokens:  newFakeTokens(),
		capture: &events.Capture{},
		owner:   makeAddress(0x01),
		vault:   makeAddress(0xee),
		now:     1000,
	}
	env.engine = NewEngine(env.vault, env.owner, testRewardToken)
	env.engine.SetState(env.state)
	env.engine.SetTokenLedger(env.tokens)
	env.engine.SetEmitter(env.capture)
	env.engine.SetNowFunc(func() uint64 { return env.now })
	return env
}

func (env *testEnv) addPool(t *testing.T, rewardsDuration, lockPeriod, withdrawDelay, vestingPeriod, multiplier uint64) uint64 {
	t.Helper()
	id, err := env.engine.AddPool(env.owner, testStakeToken, rewardsDuration, lockPeriod, withdrawDelay, vestingPeriod, multiplier)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	return id
}

func (env *testEnv) stake(t *testing.T, poolID uint64, account crypto.Address, amount int64) {
	t.Helper()
	env.tokens.mint(testStakeToken, account, amount)
	if err := env.engine.Stake(poolID, account, big.NewInt(amount)); err != nil {
		t.Fatalf("stake: %v", err)
	}
}

func TestStakeWithdrawRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 2)
	staker := makeAddress(0x10)

	env.stake(t, poolID, staker, 100)

	pool, err := env.engine.PoolInfo(poolID)
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if pool.DepositedAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("deposited after stake: %s", pool.DepositedAmount)
	}
	if got := env.engine.Votes().CurrentVotes(staker); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("votes after stake: got %s want 200", got)
	}
	if bal := env.tokens.balance(testStakeToken, env.vault); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault balance after stake: %s", bal)
	}

	if err := env.engine.Withdraw(poolID, staker, big.NewInt(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	pool, _ = env.engine.PoolInfo(poolID)
	if pool.DepositedAmount.Sign() != 0 {
		t.Fatalf("deposited after withdraw: %s", pool.DepositedAmount)
	}
	pos, err := env.engine.PositionOf(poolID, staker)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Amount.Sign() != 0 {
		t.Fatalf("position amount after withdraw: %s", pos.Amount)
	}
	if got := env.engine.Votes().CurrentVotes(staker); got.Sign() != 0 {
		t.Fatalf("votes after withdraw: %s", got)
	}
	if bal := env.tokens.balance(testStakeToken, staker); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("staker balance after withdraw: %s", bal)
	}
}

func TestAddPoolValidation(t *testing.T) {
	env := newTestEnv(t)
	outsider := makeAddress(0x30)

	if _, err := env.engine.AddPool(outsider, testStakeToken, 100, 0, 0, 0, 1); !errors.Is(err, errNotOwner) {
		t.Fatalf("non-owner add pool: got %v", err)
	}
	if _, err := env.engine.AddPool(env.owner, testStakeToken, 0, 0, 0, 0, 1); !errors.Is(err, errZeroDuration) {
		t.Fatalf("zero duration: got %v", err)
	}
	if _, err := env.engine.AddPool(env.owner, testStakeToken, 100, 0, 0, 0, 0); !errors.Is(err, errInvalidMultiplier) {
		t.Fatalf("zero multiplier: got %v", err)
	}
	if _, err := env.engine.AddPool(env.owner, "", 100, 0, 0, 0, 1); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("empty token: got %v", err)
	}
}

func TestStakeValidation(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1)
	staker := makeAddress(0x10)

	if err := env.engine.Stake(poolID, staker, big.NewInt(0)); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if err := env.engine.Stake(poolID, staker, nil); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("nil amount: got %v", err)
	}
	if err := env.engine.Stake(poolID+1, staker, big.NewInt(10)); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("missing pool: got %v", err)
	}
	if err := env.engine.Stake(poolID, staker, big.NewInt(10)); err == nil {
		t.Fatal("expected transfer failure with no balance")
	}
}

func TestStakeForOccupiedPositionRejected(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1)
	staker := makeAddress(0x10)
	sponsor := makeAddress(0x11)

	env.stake(t, poolID, staker, 50)

	env.tokens.mint(testStakeToken, sponsor, 50)
	err := env.engine.StakeFor(poolID, sponsor, staker, big.NewInt(50), crypto.Address{})
	if !errors.Is(err, errPositionOccupied) {
		t.Fatalf("stake for occupied position: got %v", err)
	}

	// A sponsor may open a fresh position for someone else.
	beneficiary := makeAddress(0x12)
	if err := env.engine.StakeFor(poolID, sponsor, beneficiary, big.NewInt(50), crypto.Address{}); err != nil {
		t.Fatalf("stake for fresh position: %v", err)
	}
	if got := env.engine.Votes().CurrentVotes(beneficiary); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("beneficiary votes: %s", got)
	}
}

func TestUnstakeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 100, 50, 0, 3)
	staker := makeAddress(0x10)

	env.stake(t, poolID, staker, 100)
	if got := env.engine.Votes().CurrentVotes(staker); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("boosted votes: got %s want 300", got)
	}

	if _, err := env.engine.Unstake(poolID, staker); !errors.Is(err, errStillLocked) {
		t.Fatalf("unstake during lock: got %v", err)
	}
	if err := env.engine.Withdraw(poolID, staker, big.NewInt(10)); !errors.Is(err, errUnstakeRequired) {
		t.Fatalf("withdraw without request: got %v", err)
	}

	env.now = 1100
	availableAt, err := env.engine.Unstake(poolID, staker)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if availableAt != 1150 {
		t.Fatalf("available at: got %d want 1150", availableAt)
	}
	// Multiplier bonus suspended, plain amount remains.
	if got := env.engine.Votes().CurrentVotes(staker); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("votes after unstake: got %s want 100", got)
	}

	if _, err := env.engine.Unstake(poolID, staker); !errors.Is(err, errAlreadyUnstaking) {
		t.Fatalf("double unstake: got %v", err)
	}
	if err := env.engine.Withdraw(poolID, staker, big.NewInt(10)); !errors.Is(err, errWithdrawDelayActive) {
		t.Fatalf("withdraw during delay: got %v", err)
	}

	env.now = 1150
	if err := env.engine.Withdraw(poolID, staker, big.NewInt(100)); err != nil {
		t.Fatalf("withdraw after delay: %v", err)
	}
	if got := env.engine.Votes().CurrentVotes(staker); got.Sign() != 0 {
		t.Fatalf("votes after withdraw: %s", got)
	}
	if bal := env.tokens.balance(testStakeToken, staker); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("staker balance: %s", bal)
	}
}

func TestUnstakeWithoutDelayRejected(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1)
	staker := makeAddress(0x10)
	env.stake(t, poolID, staker, 10)

	if _, err := env.engine.Unstake(poolID, staker); !errors.Is(err, errUnstakeNotNeeded) {
		t.Fatalf("unstake on no-delay pool: got %v", err)
	}
	if _, err := env.engine.Unstake(poolID, makeAddress(0x20)); !errors.Is(err, errNothingStaked) {
		t.Fatalf("unstake with no position: got %v", err)
	}
}

func TestRestakeCancelsUnstakeRequest(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 50, 0, 2)
	staker := makeAddress(0x10)

	env.stake(t, poolID, staker, 100)
	if _, err := env.engine.Unstake(poolID, staker); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if got := env.engine.Votes().CurrentVotes(staker); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("suspended votes: got %s want 100", got)
	}

	env.now = 1010
	env.stake(t, poolID, staker, 50)

	pos, err := env.engine.PositionOf(poolID, staker)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.UnstakeRequestTime != 0 {
		t.Fatalf("unstake request not cleared: %d", pos.UnstakeRequestTime)
	}
	if pos.DepositTime != 1010 {
		t.Fatalf("deposit time not reset: %d", pos.DepositTime)
	}
	if pos.Withdrawn.Sign() != 0 {
		t.Fatalf("withdrawn not reset: %s", pos.Withdrawn)
	}
	// Bonus restored on the full balance.
	if got := env.engine.Votes().CurrentVotes(staker); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("restored votes: got %s want 300", got)
	}
}

func TestDepositedEqualsPositionSum(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1)
	a := makeAddress(0x10)
	b := makeAddress(0x11)

	env.stake(t, poolID, a, 70)
	env.stake(t, poolID, b, 30)
	if err := env.engine.Withdraw(poolID, a, big.NewInt(20)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	total := big.NewInt(0)
	for _, addr := range []crypto.Address{a, b} {
		pos, err := env.engine.PositionOf(poolID, addr)
		if err != nil {
			t.Fatalf("position: %v", err)
		}
		total.Add(total, pos.Amount)
	}
	pool, _ := env.engine.PoolInfo(poolID)
	if pool.DepositedAmount.Cmp(total) != 0 {
		t.Fatalf("deposited %s != position sum %s", pool.DepositedAmount, total)
	}
	if env.engine.Votes().TotalVotes().Cmp(total) != 0 {
		t.Fatalf("total votes %s != stake sum %s", env.engine.Votes().TotalVotes(), total)
	}
}

func TestExitWithdrawsAndClaims(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1)
	staker := makeAddress(0x10)

	env.stake(t, poolID, staker, 100)
	env.tokens.mint(testRewardToken, env.owner, 1000)
	if err := env.engine.AddReward(poolID, env.owner, big.NewInt(1000)); err != nil {
		t.Fatalf("add reward: %v", err)
	}

	env.now = 1100
	if err := env.engine.Exit(poolID, staker); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if bal := env.tokens.balance(testStakeToken, staker); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stake returned: %s", bal)
	}
	if bal := env.tokens.balance(testRewardToken, staker); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("rewards paid: %s", bal)
	}
	pos, _ := env.engine.PositionOf(poolID, staker)
	if pos.Amount.Sign() != 0 || pos.PendingRewards.Sign() != 0 {
		t.Fatalf("position not emptied: amount=%s pending=%s", pos.Amount, pos.PendingRewards)
	}
}

func TestRecoverERC20(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1)

	env.tokens.mint("STRAY", env.vault, 500)

	if err := env.engine.RecoverERC20(poolID, makeAddress(0x30), "STRAY", big.NewInt(100)); !errors.Is(err, errNotOwner) {
		t.Fatalf("non-owner recover: got %v", err)
	}
	if err := env.engine.RecoverERC20(poolID, env.owner, testStakeToken, big.NewInt(100)); !errors.Is(err, errRecoverStakingToken) {
		t.Fatalf("recover staking token: got %v", err)
	}
	if err := env.engine.RecoverERC20(poolID, env.owner, "STRAY", big.NewInt(600)); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("recover beyond balance: got %v", err)
	}
	if err := env.engine.RecoverERC20(poolID, env.owner, "STRAY", big.NewInt(500)); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if bal := env.tokens.balance("STRAY", env.owner); bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("owner stray balance: %s", bal)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1)
	staker := makeAddress(0x10)
	env.stake(t, poolID, staker, 10)

	env.engine.SetPauses(stuckPauses{paused: true})

	if err := env.engine.Stake(poolID, staker, big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("stake while paused: got %v", err)
	}
	if err := env.engine.Withdraw(poolID, staker, big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("withdraw while paused: got %v", err)
	}
	if _, err := env.engine.GetReward(poolID, staker); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("claim while paused: got %v", err)
	}

	env.engine.SetPauses(stuckPauses{})
	if err := env.engine.Withdraw(poolID, staker, big.NewInt(10)); err != nil {
		t.Fatalf("withdraw after unpause: %v", err)
	}
}

func TestFailedTransferLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 2)
	staker := makeAddress(0x10)
	env.stake(t, poolID, staker, 100)

	env.tokens.mint(testStakeToken, staker, 50)
	env.tokens.failTransfer = true
	if err := env.engine.Stake(poolID, staker, big.NewInt(50)); err == nil {
		t.Fatal("expected stake failure")
	}
	env.tokens.failTransfer = false

	pool, _ := env.engine.PoolInfo(poolID)
	if pool.DepositedAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("deposited mutated by failed stake: %s", pool.DepositedAmount)
	}
	if got := env.engine.Votes().CurrentVotes(staker); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("votes mutated by failed stake: %s", got)
	}
}

func TestOperationHeightsFeedPriorVotes(t *testing.T) {
	env := newTestEnv(t)
	poolID := env.addPool(t, 100, 0, 0, 0, 1) // height 1
	staker := makeAddress(0x10)

	env.stake(t, poolID, staker, 100) // height 2
	env.now = 1010
	if err := env.engine.Withdraw(poolID, staker, big.NewInt(40)); err != nil { // height 3
		t.Fatalf("withdraw: %v", err)
	}

	if got := env.engine.Height(); got != 3 {
		t.Fatalf("height: got %d want 3", got)
	}
	prior, err := env.engine.Votes().PriorVotes(staker, 2)
	if err != nil {
		t.Fatalf("prior votes: %v", err)
	}
	if prior.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("votes at height 2: got %s want 100", prior)
	}
	if got := env.engine.Votes().CurrentVotes(staker); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("current votes: got %s want 60", got)
	}
}

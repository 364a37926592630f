package integration_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/clydemeng/contractkit/abi"
	"github.com/clydemeng/contractkit/core"
	"github.com/clydemeng/contractkit/core/vm"
	"github.com/clydemeng/contractkit/hostsim"
	"github.com/clydemeng/contractkit/storage"
)

// A small ERC20-style token plus a treasury contract that spends it via
// typed cross-contract calls. This is the end-to-end path: allocator,
// accessors, dispatcher, capability tokens, invoker and harness together.

var (
	selTransfer  = abi.MethodID("transfer(address,uint256)")
	selBalanceOf = abi.MethodID("balanceOf(address)")
	selMint      = abi.MethodID("mint(address,uint256)")
	selPayOut    = abi.MethodID("payOut(address,address,uint256)")

	transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

func newToken(t *testing.T, addr, owner common.Address) *core.Contract {
	t.Helper()
	layout := storage.NewLayout(
		storage.Field("totalSupply", storage.Uint(256)),
		storage.Field("owner", storage.Address()),
		storage.Field("balances", storage.MappingOf(storage.Address(), storage.Uint(256))),
	)
	totalSupply := layout.Uint("totalSupply")
	ownerField := layout.Address("owner")
	balances := layout.Mapping("balances")

	transfer := func(f *core.Frame, from, to common.Address, amount *uint256.Int) error {
		fromBal := balances.AtAddress(from).Uint(f)
		if fromBal.Lt(amount) {
			return vm.RevertWithData("InsufficientBalance",
				"transfer exceeds balance", amount.Bytes())
		}
		if err := balances.AtAddress(from).SetUint(f, fromBal.Sub(fromBal, amount)); err != nil {
			return err
		}
		toBal := balances.AtAddress(to).Uint(f)
		if err := balances.AtAddress(to).SetUint(f, toBal.Add(toBal, amount)); err != nil {
			return err
		}
		return f.Emit(
			[]common.Hash{transferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
			common.Hash(amount.Bytes32()).Bytes(),
		)
	}

	c, err := core.NewContract(addr, layout,
		core.Method{Sig: "mint(address,uint256)", Kind: vm.Mutating, Fn: func(f *core.Frame, args []byte) ([]byte, error) {
			d := abi.NewDecoder(args)
			to, err := d.ReadAddress()
			if err != nil {
				return nil, err
			}
			amount, err := d.ReadUint()
			if err != nil {
				return nil, err
			}
			if f.Ctx().Sender() != ownerField.Get(f) {
				return nil, vm.Revert("NotOwner", "mint restricted to owner")
			}
			if err := totalSupply.Add(f, amount); err != nil {
				return nil, err
			}
			bal := balances.AtAddress(to)
			cur := bal.Uint(f)
			return nil, bal.SetUint(f, cur.Add(cur, amount))
		}},
		core.Method{Sig: "transfer(address,uint256)", Kind: vm.Mutating, Fn: func(f *core.Frame, args []byte) ([]byte, error) {
			d := abi.NewDecoder(args)
			to, err := d.ReadAddress()
			if err != nil {
				return nil, err
			}
			amount, err := d.ReadUint()
			if err != nil {
				return nil, err
			}
			if err := transfer(f, f.Ctx().Sender(), to, amount); err != nil {
				return nil, err
			}
			return abi.Encode(true)
		}},
		core.Method{Sig: "balanceOf(address)", Kind: vm.View, Fn: func(f *core.Frame, args []byte) ([]byte, error) {
			who, err := abi.NewDecoder(args).ReadAddress()
			if err != nil {
				return nil, err
			}
			return abi.Encode(balances.AtAddress(who).Uint(f))
		}},
		core.Method{Sig: "totalSupply()", Kind: vm.View, Fn: func(f *core.Frame, _ []byte) ([]byte, error) {
			return abi.Encode(totalSupply.Get(f))
		}},
	)
	require.NoError(t, err)
	return c
}

// newTreasury spends a token held by the treasury address through typed
// outbound calls: a static balance probe followed by a mutating transfer.
func newTreasury(t *testing.T, addr common.Address) *core.Contract {
	t.Helper()
	layout := storage.NewLayout(storage.Field("payouts", storage.Uint(64)))
	payouts := layout.Uint("payouts")

	c, err := core.NewContract(addr, layout,
		core.Method{Sig: "payOut(address,address,uint256)", Kind: vm.Mutating, Fn: func(f *core.Frame, args []byte) ([]byte, error) {
			d := abi.NewDecoder(args)
			token, err := d.ReadAddress()
			if err != nil {
				return nil, err
			}
			to, err := d.ReadAddress()
			if err != nil {
				return nil, err
			}
			amount, err := d.ReadUint()
			if err != nil {
				return nil, err
			}

			// Read-only probe needs no capability.
			probe, err := vm.NewStaticCall(token, selBalanceOf, f.Self())
			if err != nil {
				return nil, err
			}
			out, err := f.Call(probe)
			if err != nil {
				return nil, err
			}
			have, err := abi.NewDecoder(out).ReadUint()
			if err != nil {
				return nil, err
			}
			if have.Lt(amount) {
				return nil, vm.Revert("TreasuryDry", "treasury holds %s, wants %s", have, amount)
			}

			tok, err := f.Ctx().AcquireWrite()
			if err != nil {
				return nil, err
			}
			call, err := vm.NewCall(tok, token, selTransfer, to, amount)
			if err != nil {
				return nil, err
			}
			if _, err := f.Call(call); err != nil {
				// Callee's structured revert arrives unmodified.
				return nil, err
			}
			return nil, payouts.Set64(f, payouts.Get64(f)+1)
		}},
	)
	require.NoError(t, err)
	return c
}

func balanceOf(t *testing.T, h *hostsim.Host, token, who common.Address) uint64 {
	t.Helper()
	input, err := abi.EncodeCall(selBalanceOf, who)
	require.NoError(t, err)
	out, err := h.Query(token, input)
	require.NoError(t, err)
	v, err := abi.NewDecoder(out).ReadUint()
	require.NoError(t, err)
	return v.Uint64()
}

func TestTokenLifecycle(t *testing.T) {
	owner := common.HexToAddress("0x0D3ab14BBaD3D99F4203bd7a11aCB94882050E7e")
	alice := common.HexToAddress("0xA11ce00000000000000000000000000000000001")
	tokenAddr := common.Address{0x70}

	h, err := hostsim.New()
	require.NoError(t, err)
	token := newToken(t, tokenAddr, owner)
	require.NoError(t, h.Register(token))

	// Seed owner into the token's storage before first dispatch.
	ownerSlot := token.Layout().Fields()[1].Ref.SlotHash()
	require.NoError(t, h.SetState(tokenAddr, ownerSlot, common.BytesToHash(owner.Bytes())))

	h.SetSender(owner)
	mintInput, err := abi.EncodeCall(selMint, alice, uint256.NewInt(500))
	require.NoError(t, err)
	_, err = h.Transact(tokenAddr, mintInput)
	require.NoError(t, err)
	require.Equal(t, uint64(500), balanceOf(t, h, tokenAddr, alice))

	// Non-owner mint reverts with the handler's own kind.
	h.SetSender(alice)
	_, err = h.Transact(tokenAddr, mintInput)
	require.True(t, vm.IsKind(err, "NotOwner"), "got %v", err)

	// Alice pays the owner; the Transfer event lands in the log.
	transferInput, err := abi.EncodeCall(selTransfer, owner, uint256.NewInt(123))
	require.NoError(t, err)
	_, err = h.Transact(tokenAddr, transferInput)
	require.NoError(t, err)
	require.Equal(t, uint64(377), balanceOf(t, h, tokenAddr, alice))
	require.Equal(t, uint64(123), balanceOf(t, h, tokenAddr, owner))

	logs := h.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, transferTopic, logs[0].Topics[0])

	// Overdraft reverts and moves nothing.
	overdraft, err := abi.EncodeCall(selTransfer, owner, uint256.NewInt(10_000))
	require.NoError(t, err)
	_, err = h.Transact(tokenAddr, overdraft)
	require.True(t, vm.IsKind(err, "InsufficientBalance"), "got %v", err)
	require.Equal(t, uint64(377), balanceOf(t, h, tokenAddr, alice))
}

func TestTreasuryCrossContract(t *testing.T) {
	owner := common.HexToAddress("0x01")
	payee := common.HexToAddress("0x02")
	tokenAddr := common.Address{0xAB}
	treasuryAddr := common.Address{0xCD}

	h, err := hostsim.New()
	require.NoError(t, err)
	token := newToken(t, tokenAddr, owner)
	treasury := newTreasury(t, treasuryAddr)
	require.NoError(t, h.Register(token))
	require.NoError(t, h.Register(treasury))

	ownerSlot := token.Layout().Fields()[1].Ref.SlotHash()
	require.NoError(t, h.SetState(tokenAddr, ownerSlot, common.BytesToHash(owner.Bytes())))

	// Fund the treasury with tokens.
	h.SetSender(owner)
	mintInput, err := abi.EncodeCall(selMint, treasuryAddr, uint256.NewInt(1000))
	require.NoError(t, err)
	_, err = h.Transact(tokenAddr, mintInput)
	require.NoError(t, err)

	// Treasury pays out through nested typed calls.
	payInput, err := abi.EncodeCall(selPayOut, tokenAddr, payee, uint256.NewInt(250))
	require.NoError(t, err)
	_, err = h.Transact(treasuryAddr, payInput)
	require.NoError(t, err)
	require.Equal(t, uint64(250), balanceOf(t, h, tokenAddr, payee))
	require.Equal(t, uint64(750), balanceOf(t, h, tokenAddr, treasuryAddr))

	// Asking for more than the treasury holds fails in the treasury's own
	// guard, and the nested frames leave no partial writes behind.
	tooMuch, err := abi.EncodeCall(selPayOut, tokenAddr, payee, uint256.NewInt(10_000))
	require.NoError(t, err)
	_, err = h.Transact(treasuryAddr, tooMuch)
	require.True(t, vm.IsKind(err, "TreasuryDry"), "got %v", err)
	require.Equal(t, uint64(250), balanceOf(t, h, tokenAddr, payee))

	// The callee's revert crosses the treasury unmodified: drain the
	// token below the probe threshold by mocking the probe response high.
	probeInput, err := abi.EncodeCall(selBalanceOf, treasuryAddr)
	require.NoError(t, err)
	fake, err := abi.Encode(uint256.NewInt(1_000_000))
	require.NoError(t, err)
	h.MockCall(tokenAddr, probeInput, fake)

	drained, err := abi.EncodeCall(selPayOut, tokenAddr, payee, uint256.NewInt(900))
	require.NoError(t, err)
	_, err = h.Transact(treasuryAddr, drained)
	require.True(t, vm.IsKind(err, "InsufficientBalance"), "got %v", err)
}

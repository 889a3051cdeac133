// betctl is a command-line client for betchaind.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/phenomenon0/betchain/pkg/api"
	"github.com/phenomenon0/betchain/pkg/client"
	"github.com/phenomenon0/betchain/pkg/eth"
	"github.com/phenomenon0/betchain/pkg/streaming"
)

const usage = `usage: betctl [flags] <command> [args]

Events:
  events [-all]                         list events open for betting
  latest [-pending]                     most recent event
  event <id>                            show one event
  wagers <id>                           open bets on an event
  add-event -name N -participants A,B -kind K [-in 2h | -date UNIX]
  outcome <id> -outcome O [-winner I]   declare underway, draw or decided
  settle-event <id>                     settle every bet on a final event

Bets:
  bets                                  the account's open bets
  bet <id>                              the account's bet on an event
  place <id> -winner I -amount ETH      stake on a participant
  cancel <id>                           withdraw a bet
  settle <id>                           settle the account's bet

DAI and DefiPool:
  dai                                   ledger address and supply
  transfer <address> <amount>           send DAI
  approve <spender> <amount>            allow spender to move DAI
  allowance <owner> <spender>           remaining allowance
  deposit -amount DAI [-for ADDR]       deposit into the pool
  withdraw                              close the account's pool position
  position [address]                    pool deposit of an address

Other:
  health                                server health
  account [address]                     balances and open bets
  oracle                                engine's registry binding
  set-oracle <address>                  rebind the engine
  owner <bet|oracle>                    contract administrator
  transfer-ownership <bet|oracle> <address>
  renounce-ownership <bet|oracle>       disable owner-gated operations
  watch [-events A,B]                   stream chain logs

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "betctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("betctl", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	baseURL := fs.String("api", envOr("BETCHAIN_API", client.DefaultBaseURL), "betchaind base URL")
	account := fs.String("account", os.Getenv("BETCHAIN_ACCOUNT"), "Account address to act as")
	dev := fs.Int("dev", -1, "Act as the n-th dev account instead of -account")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	addr, err := resolveAccount(*account, *dev)
	if err != nil {
		return err
	}
	c := client.NewClient(client.WithBaseURL(strings.TrimRight(*baseURL, "/")), client.WithAccount(addr))

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "watch" {
		return watch(*baseURL, rest, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := dispatch(ctx, c, cmd, rest)
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func dispatch(ctx context.Context, c *client.Client, cmd string, args []string) (interface{}, error) {
	switch cmd {
	case "health":
		return c.Health(ctx)

	case "events":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		all := fs.Bool("all", false, "Include closed and finished events")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *all {
			return c.ListAllEvents(ctx)
		}
		return c.ListEvents(ctx)

	case "latest":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		pending := fs.Bool("pending", false, "Only pending events")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return c.LatestEvent(ctx, *pending)

	case "event":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		return c.GetEvent(ctx, id)

	case "wagers":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		return c.EventWagers(ctx, id)

	case "add-event":
		return addEvent(ctx, c, args)

	case "outcome":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		outcome := fs.String("outcome", "", "underway, draw or decided")
		winner := fs.Int("winner", -1, "Winning participant index (decided only)")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		return c.DeclareOutcome(ctx, id, *outcome, *winner)

	case "settle-event":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		settled, err := c.SettleEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": id.Hex(), "settled": settled}, nil

	case "bets":
		return c.ListBets(ctx)

	case "bet":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		return c.GetBet(ctx, id)

	case "place":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		winner := fs.Int("winner", 0, "Participant index to back")
		amount := fs.String("amount", "", "Stake in ether, e.g. 0.5")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if _, err := eth.ParseEther(*amount); err != nil {
			return nil, fmt.Errorf("-amount: %w", err)
		}
		return c.PlaceBet(ctx, id, *winner, *amount)

	case "cancel":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		refund, err := c.CancelBet(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"event_id": id.Hex(), "refund": refund}, nil

	case "settle":
		id, err := hashArg(args)
		if err != nil {
			return nil, err
		}
		payout, err := c.SettleBet(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"event_id": id.Hex(), "payout": payout}, nil

	case "account":
		addr := c.Account()
		if len(args) > 0 {
			if !common.IsHexAddress(args[0]) {
				return nil, fmt.Errorf("invalid address %q", args[0])
			}
			addr = common.HexToAddress(args[0])
		}
		if addr == (common.Address{}) {
			return nil, errors.New("no address given and no account set")
		}
		return c.GetAccount(ctx, addr)

	case "dai":
		return c.Token(ctx)

	case "transfer", "approve":
		if len(args) < 2 || !common.IsHexAddress(args[0]) {
			return nil, fmt.Errorf("%s needs an address and an amount", cmd)
		}
		if cmd == "transfer" {
			return c.TransferDAI(ctx, common.HexToAddress(args[0]), args[1])
		}
		return c.ApproveDAI(ctx, common.HexToAddress(args[0]), args[1])

	case "allowance":
		if len(args) < 2 || !common.IsHexAddress(args[0]) || !common.IsHexAddress(args[1]) {
			return nil, errors.New("allowance needs an owner and a spender address")
		}
		owner, spender := common.HexToAddress(args[0]), common.HexToAddress(args[1])
		allowance, err := c.Allowance(ctx, owner, spender)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"owner": owner.Hex(), "spender": spender.Hex(), "allowance": allowance}, nil

	case "deposit":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		amount := fs.String("amount", "", "DAI to deposit, at least 10")
		beneficiary := fs.String("for", "", "Credit another address")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		var to common.Address
		if *beneficiary != "" {
			if !common.IsHexAddress(*beneficiary) {
				return nil, fmt.Errorf("invalid beneficiary %q", *beneficiary)
			}
			to = common.HexToAddress(*beneficiary)
		}
		return c.DepositPool(ctx, *amount, to)

	case "withdraw":
		paid, err := c.WithdrawPool(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"paid": paid}, nil

	case "position":
		addr := c.Account()
		if len(args) > 0 {
			if !common.IsHexAddress(args[0]) {
				return nil, fmt.Errorf("invalid address %q", args[0])
			}
			addr = common.HexToAddress(args[0])
		}
		return c.Position(ctx, addr)

	case "oracle":
		return c.Oracle(ctx)

	case "set-oracle":
		if len(args) == 0 || !common.IsHexAddress(args[0]) {
			return nil, errors.New("set-oracle needs a registry address")
		}
		return c.SetOracle(ctx, common.HexToAddress(args[0]))

	case "owner":
		if len(args) == 0 {
			return nil, errors.New("owner needs bet or oracle")
		}
		return c.Owner(ctx, args[0])

	case "transfer-ownership":
		if len(args) < 2 || !common.IsHexAddress(args[1]) {
			return nil, errors.New("transfer-ownership needs bet or oracle and the new owner's address")
		}
		return c.TransferOwnership(ctx, args[0], common.HexToAddress(args[1]))

	case "renounce-ownership":
		if len(args) == 0 {
			return nil, errors.New("renounce-ownership needs bet or oracle")
		}
		return c.RenounceOwnership(ctx, args[0])

	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func addEvent(ctx context.Context, c *client.Client, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("add-event", flag.ContinueOnError)
	name := fs.String("name", "", "Event name")
	participants := fs.String("participants", "", "Comma-separated participant names")
	kind := fs.String("kind", "", "Sport kind, e.g. soccer")
	in := fs.Duration("in", 0, "Start time relative to now")
	date := fs.Int64("date", 0, "Start time as a unix timestamp")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	start := *date
	if start == 0 {
		if *in <= 0 {
			return nil, errors.New("add-event needs -in or -date")
		}
		start = time.Now().Add(*in).Unix()
	}
	id, err := c.AddEvent(ctx, api.AddEventRequest{
		Name:         *name,
		Participants: splitList(*participants),
		Date:         start,
		Kind:         *kind,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": id.Hex()}, nil
}

func watch(baseURL string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	events := fs.String("events", "", "Comma-separated log names (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	url, err := streamURL(baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config := streaming.DefaultWatcherConfig(url)
	config.Events = splitList(*events)
	enc := json.NewEncoder(out)
	w := streaming.NewWatcher(config, streaming.WatcherHandlers{
		OnEvent: func(e streaming.Event) {
			if e.Type == streaming.EventTypeHeartbeat {
				return
			}
			enc.Encode(e)
		},
		OnDisconnect: func(err error) {
			fmt.Fprintf(os.Stderr, "disconnected: %v\n", err)
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		},
	})
	if err := w.Connect(ctx); err != nil {
		return err
	}
	defer w.Close()

	<-ctx.Done()
	return nil
}

func resolveAccount(account string, dev int) (common.Address, error) {
	if dev >= 0 {
		w, err := eth.DevWallet(dev)
		if err != nil {
			return common.Address{}, err
		}
		return w.Address(), nil
	}
	if account == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(account) {
		return common.Address{}, fmt.Errorf("invalid account %q", account)
	}
	return common.HexToAddress(account), nil
}

func hashArg(args []string) (common.Hash, error) {
	if len(args) == 0 {
		return common.Hash{}, errors.New("missing event id")
	}
	b, err := hexutil.Decode("0x" + strings.TrimPrefix(args[0], "0x"))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid event id %q", args[0])
	}
	return common.BytesToHash(b), nil
}

// streamURL turns an http(s) base URL into the hub's ws(s) URL.
func streamURL(baseURL string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws", nil
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws", nil
	default:
		return "", fmt.Errorf("unsupported api url %q", baseURL)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"union-live/internal/common/config"
	"union-live/internal/common/db"
	"union-live/internal/common/httpx"
	"union-live/internal/common/logger"
	"union-live/internal/common/mq"
	"union-live/internal/domain"
	"union-live/internal/hub"
	"union-live/internal/live"
	"union-live/internal/repository"
	"union-live/internal/rest"
)

func main() {
	mode := flag.String("mode", "", "hub | bar-terminal | swap-terminal | printer")
	flag.Parse()

	lg := logger.New("bootstrap")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		lg.Error("config_load", err, nil)
		os.Exit(1)
	}

	switch *mode {
	case "hub":
		lg.Info("service_started", map[string]any{"service": "hub", "addr": cfg.Hub.Addr})
		if err := runHub(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "bar-terminal":
		lg.Info("service_started", map[string]any{"service": "bar-terminal", "hub": cfg.Client.HubURL})
		if err := runBarTerminal(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "swap-terminal":
		lg.Info("service_started", map[string]any{"service": "swap-terminal", "hub": cfg.Client.HubURL})
		if err := runSwapTerminal(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "printer":
		lg.Info("service_started", map[string]any{"service": "printer", "queue": mq.PrinterQ})
		if err := runPrinter(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: hub | bar-terminal | swap-terminal | printer")
		os.Exit(2)
	}
}

func runHub(ctx context.Context, cfg config.App) error {
	lg := logger.New("hub")

	pool, err := db.Connect(ctx, cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Pass, cfg.Database.Name)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Name})

	var pub hub.Publisher
	if cfg.Rabbit.Host != "" {
		rmq, err := mq.Dial(cfg.Rabbit.Host, cfg.Rabbit.Port, cfg.Rabbit.User, cfg.Rabbit.Pass)
		if err != nil {
			return fmt.Errorf("rabbitmq connect: %w", err)
		}
		defer rmq.Close()
		if err := rmq.DeclareAll(); err != nil {
			return fmt.Errorf("rabbitmq declare: %w", err)
		}
		pub = rmq
		lg.Info("mq_connected", map[string]any{"host": cfg.Rabbit.Host})
	} else {
		lg.Warn("mq_disabled", nil)
	}

	members := rest.NewClient(cfg.Hub.MembershipURL, "", lg)
	payments := rest.NewClient(cfg.Hub.PaymentsURL, "", lg)

	bar := hub.NewBarTopic(lg, repository.NewOrders(pool.Pool), pub)
	swap := hub.NewSwapTopic(lg, repository.NewSwap(pool.Pool))
	if err := bar.Start(ctx); err != nil {
		return fmt.Errorf("load bar state: %w", err)
	}
	if err := swap.Start(ctx); err != nil {
		return fmt.Errorf("load swap state: %w", err)
	}

	srv := hub.NewServer(lg, hub.New(lg, bar, swap), hub.Collaborators{
		CheckMembership: members.CheckMembership,
		CreateIntent:    payments.CreateIntent,
	})
	return httpx.New(cfg.Hub.Addr, srv.Router()).Run(ctx)
}

func runBarTerminal(ctx context.Context, cfg config.App) error {
	lg := logger.New("bar-terminal")
	state := live.NewBarState()

	conn, err := live.Open(live.ConnConfig{
		URL:       cfg.Client.HubURL,
		Subscribe: domain.CmdSubscribeBar,
		Token:     cfg.Client.Token,
		Logger:    lg,
		OnEvent: func(evt any) {
			state = live.ReduceBar(state, evt)
			renderBar(state)
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	<-ctx.Done()
	return nil
}

func renderBar(state live.BarState) {
	status := "CLOSED"
	if state.Open {
		status = "OPEN"
	}
	fmt.Printf("\n== bar %s | %d active, %d completed ==\n", status, len(state.Active), len(state.Completed))
	for _, row := range live.OrderQueue(state, true) {
		marker := " "
		if row.Done {
			marker = "x"
		}
		paid := " "
		if row.Order.Paid {
			paid = "£"
		}
		fmt.Printf("[%s]%s #%-4d %-20s table %-3d %s\n",
			marker, paid, row.Order.ID, row.Order.OrderedBy, row.Order.TableNumber, row.Order.TotalPrice.StringFixed(2))
		for _, c := range row.Order.Contents {
			done := " "
			if c.Completed {
				done = "x"
			}
			fmt.Printf("      [%s] %dx %s %s\n", done, c.Quantity, c.Name, c.Size)
		}
	}
}

// runPrinter drains the back-of-house queue and prints a receipt line
// per order entering or leaving the board.
func runPrinter(ctx context.Context, cfg config.App) error {
	lg := logger.New("printer")
	if cfg.Rabbit.Host == "" {
		return errors.New("RABBITMQ_HOST is required for printer mode")
	}
	rmq, err := mq.Dial(cfg.Rabbit.Host, cfg.Rabbit.Port, cfg.Rabbit.User, cfg.Rabbit.Pass)
	if err != nil {
		return fmt.Errorf("rabbitmq connect: %w", err)
	}
	defer rmq.Close()
	if err := rmq.DeclareAll(); err != nil {
		return fmt.Errorf("rabbitmq declare: %w", err)
	}

	deliveries, err := rmq.Consume(mq.PrinterQ, "printer", 10)
	if err != nil {
		return fmt.Errorf("consume %s: %w", mq.PrinterQ, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			switch d.RoutingKey {
			case "bar." + domain.EvtBarNewOrder:
				var evt domain.BarNewOrder
				if err := json.Unmarshal(d.Body, &evt); err != nil {
					lg.Error("bad_message", err, map[string]any{"routing_key": d.RoutingKey})
					_ = d.Nack(false, false)
					continue
				}
				printReceipt(evt.Order)
			case "bar." + domain.EvtBarOrderCompleted:
				var evt domain.BarOrderCompleted
				if err := json.Unmarshal(d.Body, &evt); err != nil {
					lg.Error("bad_message", err, map[string]any{"routing_key": d.RoutingKey})
					_ = d.Nack(false, false)
					continue
				}
				fmt.Printf("--- order #%d completed ---\n", evt.OrderID)
			}
			_ = d.Ack(false)
		}
	}
}

func printReceipt(o domain.Order) {
	fmt.Printf("=== order #%d | %s | table %d ===\n", o.ID, o.OrderedBy, o.TableNumber)
	for _, c := range o.Contents {
		line := fmt.Sprintf("%dx %s", c.Quantity, c.Name)
		if c.Size != "" {
			line += " (" + c.Size + ")"
		}
		if c.Mixer != nil {
			line += " + " + *c.Mixer
		}
		fmt.Printf("  %s\n", line)
	}
	fmt.Printf("  total %s\n", o.TotalPrice.StringFixed(2))
}

func runSwapTerminal(ctx context.Context, cfg config.App) error {
	lg := logger.New("swap-terminal")
	state := live.SwapState{}

	conn, err := live.Open(live.ConnConfig{
		URL:       cfg.Client.HubURL,
		Subscribe: domain.CmdSubscribeSwap,
		Token:     cfg.Client.Token,
		Logger:    lg,
		OnEvent: func(evt any) {
			state = live.ReduceSwap(state, evt)
			renderSwap(state)
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	<-ctx.Done()
	return nil
}

func renderSwap(state live.SwapState) {
	status := "CLOSED"
	if state.Open {
		status = "OPEN"
	}
	fmt.Printf("\n== swapping %s | %d online | credit %.2f ==\n", status, state.UserCount, float64(state.Credit)/100)
	if state.LastError != "" {
		fmt.Printf("!! %s\n", state.LastError)
	}
	for _, row := range live.PairPriceList(state.Pairs) {
		fmt.Printf("#%-4d %-18s / %-18s swapped %dx  next %s\n",
			row.Pair.ID, row.Pair.First, row.Pair.Second, row.Pair.Count, row.Price.StringFixed(2))
	}
}

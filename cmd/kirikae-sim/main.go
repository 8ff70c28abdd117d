package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/kirikae/config"
	"nyiyui.ca/hato/kirikae/kujo"
	"nyiyui.ca/hato/kirikae/tal"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

func main() {
	defer zap.S().Sync()
	level := zap.LevelFlag("log-level", zap.DebugLevel, "set log level")
	configPath := flag.String("config", "", "path to config file (default: built-in loop testbench)")
	flag.Parse()
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(*level)
	dev, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(dev)

	c := config.Default()
	if *configPath != "" {
		c, err = config.Load(*configPath)
		if err != nil {
			zap.S().Fatalf("load config: %s", err)
		}
	}

	y, err := layout.InitTestbench(c.Layout)
	if err != nil {
		zap.S().Fatalf("init layout: %s", err)
	}

	var model *tal.Model
	if c.DBPath != "" {
		model, err = tal.OpenModel(c.DBPath)
		if err != nil {
			zap.S().Fatalf("open model: %s", err)
		}
		defer model.Close()
	}

	b := tal.NewBoard(tal.BoardConf{
		Comment:  c.Layout,
		Topology: y,
		Resolver: c.Resolver.Conf(),
		Model:    model,
	})
	if err := b.Restore(); err != nil {
		zap.S().Fatalf("restore switches: %s", err)
	}
	for _, sc := range c.Switches {
		if err := designate(b, y, sc); err != nil {
			zap.S().Fatalf("switch %s: %s", sc.Comment, err)
		}
	}

	s := tal.NewSimulator(c.Layout, b)
	for _, tc := range c.Trains {
		t, err := train(y, tc)
		if err != nil {
			zap.S().Fatalf("train %s: %s", tc.Comment, err)
		}
		if _, err := s.AddTrain(t); err != nil {
			zap.S().Fatalf("add train: %s", err)
		}
	}

	if c.Listen != "" {
		zap.S().Infof("starting kujo on %s…", c.Listen)
		kujoServer := kujo.NewServer(b, s)
		go func() {
			err := http.ListenAndServe(c.Listen, kujoServer.Handler())
			zap.S().Fatalf("kujo: %s", err)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	zap.S().Infof("starting simulation…")
	s.Run(ctx, c.Tick)
	zap.S().Infof("stopped")
}

func designate(b *tal.Board, y *layout.Layout, sc config.Switch) error {
	incoming, err := y.LookupEdge(sc.From, sc.To)
	if err != nil {
		return err
	}
	conf := tal.SwitchConf{
		Comment:   sc.Comment,
		Incoming:  incoming,
		Automatic: sc.Automatic,
		Locked:    sc.Locked,
		Policy:    sc.Policy,
	}
	if sc.ID != "" {
		conf.ID, err = uuid.Parse(sc.ID)
		if err != nil {
			return err
		}
	}
	if sc.State != "" {
		conf.State, err = tal.ParseSwitchState(sc.State)
		if err != nil {
			return err
		}
	}
	_, err = b.Designate(conf)
	if errors.Is(err, tal.ErrDuplicateSwitch) {
		zap.S().Infow("switch already restored", "comment", sc.Comment, "id", conf.ID)
		return nil
	}
	return err
}

func train(y *layout.Layout, tc config.Train) (tal.Train, error) {
	e, err := y.LookupEdge(tc.From, tc.To)
	if err != nil {
		return tal.Train{}, err
	}
	t := tal.Train{Comment: tc.Comment, Prev: e.From, At: e.To}
	if tc.Destination != "" {
		dest, ok := y.Lookup(tc.Destination)
		if !ok {
			return tal.Train{}, errors.New("no node named " + tc.Destination)
		}
		t.Destination = &dest
	}
	return t, nil
}

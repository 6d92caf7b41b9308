// Command modelctl trains, inspects and serves linear models through the
// same runtime the shared library exposes.
//
//	modelctl fit -x x.csv -y y.csv [-learner sgd|ols|wasm] [-out params.json] [-store URI -name NAME -iteration N] [-zstd]
//	modelctl predict -x x.csv (-params params.json | -store URI -name NAME) [-zstd]
//	modelctl inspect (-params params.json | -store URI -name NAME) [-zstd]
//	modelctl list -store URI [-prefix P] [-zstd]
//	modelctl signatures
//	modelctl -i
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/model-runtime/abi"
	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/codec"
	"github.com/wippyai/model-runtime/config"
	"github.com/wippyai/model-runtime/learner/wasm"
	"github.com/wippyai/model-runtime/model"
	"github.com/wippyai/model-runtime/runtime"
	"github.com/wippyai/model-runtime/snapshot"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: modelctl fit -x x.csv -y y.csv [-learner name] [-out params.json] [-store URI -name NAME]")
	fmt.Fprintln(os.Stderr, "       modelctl predict -x x.csv (-params params.json | -store URI -name NAME)")
	fmt.Fprintln(os.Stderr, "       modelctl inspect (-params params.json | -store URI -name NAME)")
	fmt.Fprintln(os.Stderr, "       modelctl list -store URI [-prefix P]")
	fmt.Fprintln(os.Stderr, "       modelctl signatures")
	fmt.Fprintln(os.Stderr, "       modelctl -i  (interactive mode)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "-i", "--i", "interactive":
		err = runInteractive()
	case "fit":
		err = cmdFit(args)
	case "predict":
		err = cmdPredict(args)
	case "inspect":
		err = cmdInspect(args)
	case "list":
		err = cmdList(args)
	case "signatures":
		err = cmdSignatures(os.Stdout)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags shared by subcommands.
type common struct {
	configPath string
	logLevel   string
	store      string
	name       string
	params     string
	compress   bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (default $MODELRT_CONFIG)")
	fs.StringVar(&c.logLevel, "log", "", "Log level override")
	fs.StringVar(&c.store, "store", "", "Snapshot store URI (dir, s3://bucket/prefix, minio://endpoint/bucket/prefix)")
	fs.StringVar(&c.name, "name", "", "Snapshot name")
	fs.StringVar(&c.params, "params", "", "Params JSON file")
	fs.BoolVar(&c.compress, "zstd", false, "zstd-compress snapshots")
}

func (c *common) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if c.configPath != "" {
		if cfg, err = config.Load(c.configPath); err != nil {
			return cfg, err
		}
		if err = cfg.ApplyEnv(os.LookupEnv); err != nil {
			return cfg, err
		}
	} else if cfg, err = config.FromEnvironment(); err != nil {
		return cfg, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	cfg.Log.Format = "console"
	return cfg, cfg.Validate()
}

func (c *common) openRuntime(ctx context.Context) (*runtime.Runtime, config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	log, err := cfg.BuildLogger()
	if err != nil {
		return nil, cfg, err
	}
	wasm.SetLogger(log.Named("wasm"))
	rt, err := runtime.New(ctx, runtime.WithConfig(cfg), runtime.WithLogger(log))
	return rt, cfg, err
}

// readParams returns the params text named by -params or -store/-name.
func (c *common) readParams(ctx context.Context) ([]byte, error) {
	switch {
	case c.params != "":
		return os.ReadFile(c.params)
	case c.store != "" && c.name != "":
		store, done, err := openStore(ctx, c.store, c.compress)
		if err != nil {
			return nil, err
		}
		defer done()
		return store.Get(ctx, c.name)
	default:
		return nil, fmt.Errorf("need -params or -store with -name")
	}
}

func cmdFit(args []string) error {
	var (
		c         common
		fs        = flag.NewFlagSet("fit", flag.ExitOnError)
		xPath     = fs.String("x", "", "Features CSV (rows x features)")
		yPath     = fs.String("y", "", "Targets CSV (rows x outputs)")
		learnerID = fs.String("learner", "", "Learner name (default from config)")
		out       = fs.String("out", "", "Write params JSON here (default stdout)")
		iteration = fs.Int("iteration", 0, "Snapshot iteration")
	)
	c.register(fs)
	_ = fs.Parse(args)
	if *xPath == "" || *yPath == "" {
		return fmt.Errorf("fit needs -x and -y")
	}

	ctx := context.Background()
	rt, _, err := c.openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	x, err := readCSVFile(*xPath)
	if err != nil {
		return err
	}
	y, err := readCSVFile(*yPath)
	if err != nil {
		return err
	}

	params := rt.Defaults()
	if *learnerID != "" {
		params.Learner = *learnerID
	}
	h, err := rt.NewModelWith(params)
	if err != nil {
		return err
	}
	if err := rt.Fit(ctx, h, x, y); err != nil {
		return err
	}
	text, err := rt.GetParams(h)
	if err != nil {
		return err
	}

	if c.store != "" {
		store, done, err := openStore(ctx, c.store, c.compress)
		if err != nil {
			return err
		}
		defer done()
		name := c.name
		if name == "" {
			name = snapshot.Name(*iteration, params.Learner)
		}
		if err := rt.Save(ctx, store, h, name); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved %s\n", name)
	}

	if *out != "" {
		return os.WriteFile(*out, text, 0o644)
	}
	_, err = fmt.Fprintln(os.Stdout, string(text))
	return err
}

func cmdPredict(args []string) error {
	var (
		c     common
		fs    = flag.NewFlagSet("predict", flag.ExitOnError)
		xPath = fs.String("x", "", "Features CSV (rows x features)")
	)
	c.register(fs)
	_ = fs.Parse(args)
	if *xPath == "" {
		return fmt.Errorf("predict needs -x")
	}

	ctx := context.Background()
	rt, _, err := c.openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	text, err := c.readParams(ctx)
	if err != nil {
		return err
	}
	x, err := readCSVFile(*xPath)
	if err != nil {
		return err
	}

	h, err := rt.NewModel()
	if err != nil {
		return err
	}
	if err := rt.SetParams(h, text); err != nil {
		return err
	}
	m, err := rt.Model(h)
	if err != nil {
		return err
	}
	out := array.Zeros(x.Rows(), m.OutputWidth())
	if err := rt.Predict(out, h, x); err != nil {
		return err
	}
	return writeCSV(os.Stdout, out)
}

func cmdInspect(args []string) error {
	var c common
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	c.register(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	text, err := c.readParams(ctx)
	if err != nil {
		return err
	}
	cd, ok := codec.ByName(cfg.Params.Codec)
	if !ok {
		cd = codec.Default
	}
	state, err := codec.Decode(cd, text, cfg.Learner)
	if err != nil {
		return err
	}
	return describe(os.Stdout, state)
}

func cmdList(args []string) error {
	var c common
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	prefix := fs.String("prefix", "", "Name prefix")
	c.register(fs)
	_ = fs.Parse(args)
	if c.store == "" {
		return fmt.Errorf("list needs -store")
	}

	ctx := context.Background()
	store, done, err := openStore(ctx, c.store, c.compress)
	if err != nil {
		return err
	}
	defer done()

	names, err := store.List(ctx, *prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if it, model, ok := snapshot.ParseName(name); ok {
			fmt.Printf("%-40s iteration=%d model=%s\n", name, it, model)
		} else {
			fmt.Println(name)
		}
	}
	return nil
}

func cmdSignatures(w io.Writer) error {
	for _, sig := range abi.Signatures() {
		if _, err := fmt.Fprintf(w, "%-70s %s\n", sig.String(), sig.Doc); err != nil {
			return err
		}
	}
	return nil
}

func runInteractive() error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	var c common
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	rt, err := runtime.New(ctx, runtime.WithConfig(cfg), runtime.WithLogger(zap.NewNop()))
	if err != nil {
		return err
	}
	s := abi.New(rt, nil)
	defer s.Shutdown()

	return runTUI(s)
}

func describe(w io.Writer, state *model.State) error {
	var b strings.Builder
	fmt.Fprintf(&b, "hyperparams: %s\n", state.Params)
	l := state.Fitted
	if l == nil {
		b.WriteString("fitted:      false\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	fmt.Fprintf(&b, "fitted:      true\n")
	fmt.Fprintf(&b, "outputs:     %d\n", l.NOutputs())
	fmt.Fprintf(&b, "features:    %d\n", l.NFeatures())
	fmt.Fprintf(&b, "n_iter:      %d\n", l.NIter)
	fmt.Fprintf(&b, "loss:        %g\n", l.TrainingLoss)
	for o := range l.Coef {
		fmt.Fprintf(&b, "output %d:    intercept=%g coef=%v\n", o, l.Intercept[o], l.Coef[o])
	}
	_, err := io.WriteString(w, b.String())
	return err
}

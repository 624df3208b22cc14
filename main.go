package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	flag "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/foamtail/foamtail/analyzer"
	"github.com/foamtail/foamtail/matchers"
	"github.com/foamtail/foamtail/outfile"
	"github.com/foamtail/foamtail/reporting"
	"github.com/foamtail/foamtail/source"
	"github.com/foamtail/foamtail/timeline"
)

// BuildID is set by the release build
var BuildID string

// internal version identifier
var version string

// GlobalOptions has all the top level CLI flags that foamtail supports
type GlobalOptions struct {
	ConfigFile string `short:"c" long:"config" description:"Config file for foamtail in INI format." no-ini:"true" yaml:"-"`
	ConfigYaml string `long:"config_yaml" description:"Config file for foamtail in YAML format." yaml:"-"`
	WriteYaml  string `long:"write_yaml" description:"When specified (a filename), parse the existing config, then write a new YAML config to the specified YAML file and quit." yaml:"-"`

	Debug          bool   `long:"debug" description:"Print debugging output" yaml:"debug,omitempty"`
	Progress       bool   `long:"progress" description:"Print one progress line per time step" yaml:"progress,omitempty"`
	Summary        bool   `long:"summary" description:"Print a table of the latest values at the end of the run" yaml:"summary,omitempty"`
	StatusInterval uint   `long:"status_interval" description:"How frequently, in seconds, to log summary info. 0 disables it." default:"60" yaml:"status_interval"`
	MetricsAddr    string `long:"metrics_addr" description:"Serve Prometheus metrics on this address, e.g. :9107" yaml:"metrics_addr,omitempty"`
	WarningsPerSec int    `long:"warnings_per_sec" description:"Parse warnings of one matcher logged per second, the rest is counted" default:"5" yaml:"warnings_per_sec"`
	NoStrip        bool   `long:"no_strip" description:"Keep leading and trailing whitespace of log lines" yaml:"no_strip,omitempty"`
	TimeRegex      string `long:"time_regex" description:"Regex with one capture group matching the lines that announce a new simulation time" yaml:"time_regex,omitempty"`

	Custom []string `long:"custom" description:"Format: 'name=regex'. Add a matcher writing every capture group of regex to the file name. May have multiple values." yaml:"custom,omitempty"`
	KeyVal []string `long:"keyval" description:"Format: 'name=prefix'. Add a matcher reading key=value pairs from lines starting with prefix. May have multiple values." yaml:"keyval,omitempty"`

	Reqs  RequiredOptions `group:"Required Options" yaml:"required_options,omitempty"`
	Modes OtherModes      `group:"Other Modes" yaml:"-"`

	Tail      source.Options            `group:"Tail Options" namespace:"tail" yaml:",omitempty"`
	Output    OutputOptions             `group:"Output Options" namespace:"output" yaml:",omitempty"`
	Honeycomb timeline.HoneycombOptions `group:"Honeycomb Options" namespace:"honeycomb" yaml:",omitempty"`
}

type RequiredOptions struct {
	LogFile string `short:"f" long:"file" description:"Solver log to analyze. Use '-' for STDIN." yaml:"file,omitempty"`
}

type OutputOptions struct {
	Dir          string                `short:"o" long:"dir" description:"Directory for the analysis files. Defaults to <file>.analyzed" yaml:"dir,omitempty"`
	MaxOpenFiles int                   `long:"max_open_files" description:"Output files kept open at once. Defaults to a quarter of the open file limit, at most 10." yaml:"max_open_files,omitempty"`
	NoFiles      bool                  `long:"no_files" description:"Do not write analysis files" yaml:"no_files,omitempty"`
	SingleFile   bool                  `long:"single_file" description:"Write repeated values of one time step to the same file instead of name_2, name_3" yaml:"single_file,omitempty"`
	Start        string                `long:"start" description:"Only forward values from this simulation time on" yaml:"start,omitempty"`
	End          string                `long:"end" description:"Only forward values up to this simulation time" yaml:"end,omitempty"`
	Iterations   bool                  `long:"iterations" description:"Use a counter of matches instead of the simulation time for the series" yaml:"iterations,omitempty"`
	Accumulation timeline.Accumulation `long:"accumulation" description:"What to keep when a series gets several values in one time step. Values: first, last, sum" default:"first" yaml:"accumulation,omitempty"`
	Extend       bool                  `long:"extend" description:"Fill time steps without a value with the previous value instead of NaN" yaml:"extend,omitempty"`
}

type OtherModes struct {
	Help               bool `short:"h" long:"help" description:"Show this help message."`
	ListMatchers       bool `short:"l" long:"list" description:"List the standard matchers."`
	Version            bool `short:"V" long:"version" description:"Show version."`
	WriteDefaultConfig bool `long:"write_default_config" description:"Write a default config file to STDOUT." no-ini:"true"`
	WriteCurrentConfig bool `long:"write_current_config" description:"Write out the current config to STDOUT." no-ini:"true"`
	WriteCurrentYaml   bool `long:"write_current_yaml" description:"Write out the current config to STDOUT as YAML." no-ini:"true"`
}

func main() {
	var options GlobalOptions
	flagParser := flag.NewParser(&options, flag.PrintErrors)
	flagParser.Usage = `-f </path/to/log.solver> [optional arguments]`

	if extraArgs, err := flagParser.Parse(); err != nil || len(extraArgs) != 0 {
		fmt.Println("Error: failed to parse the command line.")
		if err != nil {
			fmt.Printf("\t%s\n", err)
		} else {
			fmt.Printf("\tUnexpected extra arguments: %s\n", strings.Join(extraArgs, " "))
		}
		usage()
		os.Exit(1)
	}
	// read the config file if present
	if options.ConfigFile != "" {
		ini := flag.NewIniParser(flagParser)
		ini.ParseAsDefaults = true
		if err := ini.ParseFile(options.ConfigFile); err != nil {
			fmt.Printf("Error: failed to parse the config file %s\n", options.ConfigFile)
			fmt.Printf("\t%s\n", err)
			usage()
			os.Exit(1)
		}
	}

	if options.ConfigYaml != "" {
		if err := readYaml(options.ConfigYaml, &options); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	if options.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	setVersion()
	handleOtherModes(flagParser, options)
	sanityCheckOptions(&options)

	if options.Output.MaxOpenFiles > 0 {
		outfile.MaxOpenFiles = options.Output.MaxOpenFiles
	} else {
		outfile.MaxOpenFiles = outfile.DefaultMaxOpen(outfile.MaxOpenFiles)
	}
	reporting.Init(options.WarningsPerSec)

	logrus.Debug("parsed arguments: ", structToString(options))

	run(context.Background(), options)
}

func readYaml(path string, options *GlobalOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, options); err != nil {
		return fmt.Errorf("error parsing %s: %w", path, err)
	}
	return nil
}

// convert options struct to a comma separated list of key=value pairs (for debugging)
func structToString(s interface{}) string {
	v := reflect.ValueOf(s)
	t := v.Type()
	fields := make([]string, v.NumField())

	isExported := func(s string) bool {
		f := s[0:1]
		return f == strings.ToUpper(f)
	}

	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).Kind() == reflect.Struct {
			fields[i] = structToString(v.Field(i).Interface())
		} else {
			name := t.Field(i).Name
			if isExported(name) {
				value := v.Field(i).Interface()
				if name == "WriteKey" {
					value = "[REDACTED]"
				}
				fields[i] = fmt.Sprintf("%s.%s=%v", t, name, value)
			}
		}
	}
	return strings.Join(fields, ",")
}

func setVersion() {
	if BuildID == "" {
		version = "dev"
	} else {
		version = BuildID
	}
}

// handleOtherModes takes care of all flags that say we should just do something
// and exit rather than actually analyzing a log
func handleOtherModes(fp *flag.Parser, options GlobalOptions) {
	modes := options.Modes
	if modes.Version {
		fmt.Println("foamtail version", version)
		os.Exit(0)
	}
	if modes.Help {
		fp.WriteHelp(os.Stdout)
		fmt.Println("")
		os.Exit(0)
	}
	if modes.WriteDefaultConfig {
		ip := flag.NewIniParser(fp)
		ip.Write(os.Stdout, flag.IniIncludeDefaults|flag.IniCommentDefaults|flag.IniIncludeComments)
		os.Exit(0)
	}
	if modes.WriteCurrentConfig {
		ip := flag.NewIniParser(fp)
		ip.Write(os.Stdout, flag.IniIncludeComments)
		os.Exit(0)
	}
	if modes.WriteCurrentYaml || options.WriteYaml != "" {
		y, err := yaml.Marshal(options)
		if err != nil {
			fmt.Println("unable to marshal options to YAML!")
			os.Exit(1)
		}
		if options.WriteYaml != "" {
			if err := os.WriteFile(options.WriteYaml, y, 0644); err != nil {
				fmt.Printf("unable to write %s: %s\n", options.WriteYaml, err)
				os.Exit(1)
			}
			os.Exit(0)
		}
		os.Stdout.Write(y)
		os.Exit(0)
	}

	if modes.ListMatchers {
		names := []string{analyzer.TimeName}
		for _, e := range matchers.Standard(analyzer.RouterConfig{}) {
			names = append(names, e.Name)
		}
		fmt.Println("Standard matchers:", strings.Join(names, ", "))
		os.Exit(0)
	}
}

func sanityCheckOptions(options *GlobalOptions) {
	switch {
	case options.Reqs.LogFile == "":
		fmt.Println("Log file name or '-' required to be specified with the --file flag.")
		usage()
		os.Exit(1)
	case options.Reqs.LogFile == "-" && options.Tail.Follow:
		fmt.Println("Standard input cannot be followed, drop --tail.follow.")
		usage()
		os.Exit(1)
	case options.Tail.ReadFrom != "beginning" && options.Tail.ReadFrom != "end":
		fmt.Println("tail.read_from flag must be either 'beginning' or 'end'.")
		usage()
		os.Exit(1)
	case options.Honeycomb.Dataset != "" && options.Honeycomb.WriteKey == "" && !options.Honeycomb.DebugOut:
		fmt.Println("Write key required to be specified with the --honeycomb.writekey flag.")
		usage()
		os.Exit(1)
	case options.Honeycomb.SampleRate == 0:
		fmt.Println("Sample rate must be an integer >= 1")
		usage()
		os.Exit(1)
	case options.WarningsPerSec < 1:
		fmt.Println("warnings_per_sec must be an integer >= 1")
		usage()
		os.Exit(1)
	case options.Output.MaxOpenFiles < 0:
		fmt.Println("output.max_open_files must not be negative")
		usage()
		os.Exit(1)
	}

	start, err := parseBound(options.Output.Start)
	if err != nil {
		fmt.Printf("output.start %q is not a number\n", options.Output.Start)
		os.Exit(1)
	}
	end, err := parseBound(options.Output.End)
	if err != nil {
		fmt.Printf("output.end %q is not a number\n", options.Output.End)
		os.Exit(1)
	}
	if start != nil && end != nil && *start > *end {
		fmt.Println("output.start is after output.end. Zero values to forward. Ok, all done! ;)")
		os.Exit(1)
	}

	if options.TimeRegex != "" {
		re, err := regexp.Compile(options.TimeRegex)
		if err != nil || re.NumSubexp() < 1 {
			fmt.Printf("Time regex %s needs to compile and have a capture group\n", options.TimeRegex)
			usage()
			os.Exit(1)
		}
	}
	for _, c := range options.Custom {
		if _, err := matchers.ParseRegexOption(c); err != nil {
			fmt.Println(err)
			usage()
			os.Exit(1)
		}
	}
	for _, kv := range options.KeyVal {
		if _, err := parseKeyValOption(kv); err != nil {
			fmt.Println(err)
			usage()
			os.Exit(1)
		}
	}

	if options.Reqs.LogFile != "-" {
		if _, err := os.Stat(options.Reqs.LogFile); err != nil && !options.Tail.Follow {
			fmt.Printf("Log file specified by --file (%s) not found!\n", options.Reqs.LogFile)
			usage()
			os.Exit(1)
		}
	}
	if options.Output.Dir == "" {
		name := options.Reqs.LogFile
		if name == "-" {
			name = "stdin"
		}
		options.Output.Dir = name + ".analyzed"
	}
	if options.Honeycomb.Run == "" {
		options.Honeycomb.Run = options.Reqs.LogFile
	}
}

func parseBound(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseKeyValOption(s string) (matchers.KeyValOptions, error) {
	name, prefix, ok := strings.Cut(s, "=")
	if !ok || name == "" || prefix == "" {
		return matchers.KeyValOptions{}, fmt.Errorf("key value matcher %q is not of the form name=prefix", s)
	}
	return matchers.KeyValOptions{Name: name, Prefix: prefix}, nil
}

func usage() {
	fmt.Print(`
Usage: foamtail -f </path/to/log.solver> [optional arguments]

For even more detail on required and optional parameters, run
foamtail --help
`)
}

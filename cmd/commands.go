package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/moratsam/rlnc/codec"
)

var (
	file_in     string
	file_out    string
	config_path string
	v           = newViper()
	cfg         *Config
	c           codec.Codec

	root_cmd = &cobra.Command{
		Use:   "rlnc",
		Short: "Code files with random linear network codes over GF(2^8).",
		Long: `rlnc cuts a file into generations of packets and writes random linear
combinations of every generation to a coded stream. Any generation-size
linearly independent packets of a generation rebuild it, so a stream
survives the loss of up to redundancy packets per generation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			if cfg, err = LoadConfig(v, config_path); err != nil {
				return err
			}
			if err = setLogLevel(cfg.LogLevel); err != nil {
				return err
			}
			c, err = cfg.Codec()
			return err
		},
	}

	cmd_codec = &cobra.Command{
		Use:   "codec",
		Short: "Encode the input and decode it again into the output",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := file_in + ".rlnc"
			if err := c.Encode(file_in, enc); err != nil {
				return err
			}
			return c.Decode(enc, file_out)
		},
	}

	cmd_decode = &cobra.Command{
		Use:   "decode",
		Short: "Rebuild a file from a coded stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Decode(file_in, file_out)
		},
	}

	cmd_encode = &cobra.Command{
		Use:   "encode",
		Short: "Write a coded stream of the input",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := file_out
			if out == "" {
				out = file_in + ".rlnc"
			}
			return c.Encode(file_in, out)
		},
	}

	cmd_inspect = &cobra.Command{
		Use:   "inspect",
		Short: "Print the header and per generation packet counts of a coded stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := codec.Inspect(file_in)
			if err != nil {
				return err
			}
			printSummary(cmd, s)
			return nil
		},
	}
)

func printSummary(cmd *cobra.Command, s *codec.Summary) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, s.Meta)
	gens := make([]int, 0, len(s.Packets))
	for g := range s.Packets {
		gens = append(gens, int(g))
	}
	sort.Ints(gens)
	for _, g := range gens {
		fmt.Fprintf(w, "generation %d: %d packets, %d uncoded\n", g, s.Packets[uint32(g)], s.Uncoded[uint32(g)])
	}
	if s.Corrupt > 0 {
		fmt.Fprintf(w, "corrupt frames: %d\n", s.Corrupt)
	}
	if short := s.Short(); len(short) > 0 {
		fmt.Fprintf(w, "undecodable generations: %v\n", short)
	}
}

func Execute() error {
	return root_cmd.Execute()
}

func init() {
	root_cmd.AddCommand(cmd_codec, cmd_decode, cmd_encode, cmd_inspect)

	// Cmd Root
	pf := root_cmd.PersistentFlags()
	pf.StringVar(&config_path, "config", "", "Config file (yaml, toml or json)")
	pf.StringP("proc", "p", "sequential", "Processor type ({\"sequential\",\"streamer\",\"opencl\"})")
	pf.Int("workers", 4, "Workers of the streamer processor")
	pf.IntP("generation-size", "n", 8, "Source packets per generation (1-255)")
	pf.Int("packet-size", 1024, "Bytes per packet")
	pf.IntP("redundancy", "k", 2, "Extra coded packets per generation")
	pf.Bool("systematic", false, "Send the source packets uncoded before the coded ones")
	pf.String("field", "rlnc", "Field polynomial ({\"rlnc\",\"aes\"})")
	pf.String("log-level", "info", "Log level")
	for _, key := range []string{"proc", "workers", "generation-size", "packet-size", "redundancy", "systematic", "field", "log-level"} {
		v.BindPFlag(key, pf.Lookup(key))
	}

	// Cmd Codec
	cmd_codec.Flags().StringVarP(&file_in, "input", "i", "", "Input file")
	cmd_codec.Flags().StringVarP(&file_out, "output", "o", "", "Output file")
	cmd_codec.MarkFlagRequired("input")
	cmd_codec.MarkFlagRequired("output")

	// Cmd Decode
	cmd_decode.Flags().StringVarP(&file_in, "input", "i", "", "Coded stream")
	cmd_decode.Flags().StringVarP(&file_out, "output", "o", "", "Output file")
	cmd_decode.MarkFlagRequired("input")
	cmd_decode.MarkFlagRequired("output")

	// Cmd Encode
	cmd_encode.Flags().StringVarP(&file_in, "input", "i", "", "Input file")
	cmd_encode.Flags().StringVarP(&file_out, "output", "o", "", "Coded stream (default <input>.rlnc)")
	cmd_encode.MarkFlagRequired("input")

	// Cmd Inspect
	cmd_inspect.Flags().StringVarP(&file_in, "input", "i", "", "Coded stream")
	cmd_inspect.MarkFlagRequired("input")
}

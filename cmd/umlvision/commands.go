package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openboard/umlvision/internal/command"
	"github.com/openboard/umlvision/internal/detect"
	"github.com/openboard/umlvision/internal/model"
	"github.com/openboard/umlvision/internal/ocr"
	"github.com/openboard/umlvision/internal/pipeline"
	"github.com/openboard/umlvision/internal/server"
)

var (
	extractImage    string
	extractIdentity string
	extractMerge    string
	extractNoCache  bool

	commandInstruction string
	commandSnapshot    string
	commandDiagramID   string
	commandIdentity    string
	commandNoCache     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a class diagram from an image file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		raw, err := os.ReadFile(extractImage)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}

		req := pipeline.Request{
			Payload:  base64.StdEncoding.EncodeToString(raw),
			Identity: extractIdentity,
			UseCache: !extractNoCache,
		}
		if extractMerge != "" {
			snap, err := readSnapshot(extractMerge)
			if err != nil {
				return err
			}
			req.Existing = snap
		}

		res, err := pipeline.NewExtractor(cfg, logger).Extract(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Turn a natural-language instruction into a diagram delta",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		snap := &model.DiagramSnapshot{}
		if commandSnapshot != "" {
			var err error
			if snap, err = readSnapshot(commandSnapshot); err != nil {
				return err
			}
		}

		delta, err := command.NewProcessor(cfg, logger).Process(cmd.Context(), command.Request{
			Instruction: commandInstruction,
			DiagramID:   commandDiagramID,
			Snapshot:    snap,
			Identity:    commandIdentity,
			UseCache:    !commandNoCache,
		})
		if err != nil {
			return err
		}
		return printJSON(delta)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report which detection and recognition backends are available",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		recognizer := ocr.NewRecognizer(cfg.OCR, logger)
		detector := detect.New(cfg.Detect, logger)

		return printJSON(map[string]any{
			"detector_available":        detector.Available(),
			"fast_engine_available":     recognizer.FastAvailable(),
			"accurate_engine_available": recognizer.AccurateAvailable(),
			"engines":                   recognizer.Engines(),
			"tesseract_version":         ocr.Version(),
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		return server.New(cfg, logger).Run(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractImage, "image", "", "Path to the diagram image (required)")
	extractCmd.Flags().StringVar(&extractIdentity, "identity", "cli", "Caller identity for rate limiting")
	extractCmd.Flags().StringVar(&extractMerge, "merge", "", "Path to an existing diagram snapshot JSON to merge into")
	extractCmd.Flags().BoolVar(&extractNoCache, "no-cache", false, "Skip the extraction cache")
	extractCmd.MarkFlagRequired("image")

	commandCmd.Flags().StringVar(&commandInstruction, "instruction", "", "Editing instruction (required)")
	commandCmd.Flags().StringVar(&commandSnapshot, "snapshot", "", "Path to the current diagram snapshot JSON")
	commandCmd.Flags().StringVar(&commandDiagramID, "diagram-id", "", "Opaque diagram identifier for cache keying")
	commandCmd.Flags().StringVar(&commandIdentity, "identity", "cli", "Caller identity for rate limiting")
	commandCmd.Flags().BoolVar(&commandNoCache, "no-cache", false, "Skip the delta cache")
	commandCmd.MarkFlagRequired("instruction")
}

func readSnapshot(path string) (*model.DiagramSnapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap model.DiagramSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

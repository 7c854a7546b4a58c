package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voxgate/internal/audit"
	"github.com/skypro1111/voxgate/internal/domain"
	"github.com/skypro1111/voxgate/internal/pipeline"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <audio>...",
	Short: "Register audio samples for an identity",
	Long: `Register one or more clips for an identity. Each clip is quality gated
and stored in the lowest free slot. A rejected clip is reported and the
remaining clips are still processed.

Examples:
  voxgate enroll alice a1.wav a2.wav a3.wav
  voxgate -c prod.yaml enroll bob sample.mp3`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		type item struct {
			File         string                 `json:"file"`
			Registration *pipeline.Registration `json:"registration,omitempty"`
			Error        string                 `json:"error,omitempty"`
		}

		var items []item
		var firstErr error
		for _, path := range args[1:] {
			data, err := readAudio(path)
			if err == nil {
				var reg *pipeline.Registration
				reg, err = a.service.RegisterSample(cmd.Context(), args[0], data)
				if err == nil {
					items = append(items, item{File: path, Registration: reg})
					continue
				}
			}
			items = append(items, item{File: path, Error: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, domain.ErrEnrollmentCapExceeded) {
				break
			}
		}

		if err := printJSON(cmd, items); err != nil {
			return err
		}
		return firstErr
	},
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize <audio>",
	Short: "Identify the speaker of a clip against the enrolled gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := readAudio(args[0])
		if err != nil {
			return err
		}
		result, err := a.service.Recognize(cmd.Context(), data, nil)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <identity> <audio>",
	Short: "Check a clip against one enrolled identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := readAudio(args[1])
		if err != nil {
			return err
		}
		result, err := a.service.Verify(cmd.Context(), args[0], data)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var affectSubject string

var affectCmd = &cobra.Command{
	Use:   "affect <audio>...",
	Short: "Classify the affect of one or more clips",
	Long: `Classify the affect of each clip. Several clips are processed
concurrently and reported in argument order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		var opts []pipeline.AffectOption
		if affectSubject != "" {
			opts = append(opts, pipeline.WithSubject(affectSubject))
		}

		if len(args) == 1 {
			data, err := readAudio(args[0])
			if err != nil {
				return err
			}
			result, err := a.service.DetectAffect(cmd.Context(), data, opts...)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}

		uploads := make([][]byte, len(args))
		for i, path := range args {
			if uploads[i], err = readAudio(path); err != nil {
				return err
			}
		}

		type item struct {
			File   string `json:"file"`
			Result any    `json:"result,omitempty"`
			Error  string `json:"error,omitempty"`
		}
		items := make([]item, len(args))
		for i, it := range a.service.BatchDetectAffect(cmd.Context(), uploads, opts...) {
			items[i].File = args[i]
			if it.Err != nil {
				items[i].Error = it.Err.Error()
				continue
			}
			items[i].Result = it.Result
		}
		return printJSON(cmd, items)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <identity>",
	Short: "Show enrollment progress of an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.service.EnrollmentStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	},
}

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities in creation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.service.Identities(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, ids)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <identity> <index>",
	Short: "Delete one enrolled sample",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid sample index %q", args[1])
		}

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.service.RemoveSample(cmd.Context(), args[0], index); err != nil {
			return err
		}
		st, err := a.service.EnrollmentStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <identity>",
	Short: "Delete an identity with all of its samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.service.ForgetIdentity(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
		return nil
	},
}

var (
	auditKind    string
	auditSubject string
	auditLimit   int
	auditStats   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recorded decisions, newest first",
	Long: `List recorded decisions, newest first. With --stats, print an aggregate
of the matching records instead: counts per kind, input quality buckets,
latency, dominant affect frequency and match acceptance rate.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, err := audit.ParseKind(auditKind)
		if err != nil {
			return err
		}

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if auditStats {
			f := audit.Filter{Kind: kind, SubjectID: auditSubject}
			if cmd.Flags().Changed("limit") {
				f.Limit = auditLimit
			}
			stats, err := a.service.AuditStats(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		}

		records, err := a.service.AuditLog(cmd.Context(), audit.Filter{
			Kind:      kind,
			SubjectID: auditSubject,
			Limit:     auditLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, records)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditKind, "kind", "", "recognition, verification, affect or enrollment")
	auditCmd.Flags().StringVar(&auditSubject, "subject", "", "identity id")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum number of records")
	auditCmd.Flags().BoolVar(&auditStats, "stats", false, "print aggregate statistics instead of records")

	affectCmd.Flags().StringVar(&affectSubject, "subject", "", "identity id the readings are attributed to")
}

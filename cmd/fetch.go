package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jcdickinson/eguinet/internal/rustdoc"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [crate[@version] ...]",
	Short: "Download rustdoc JSON from docs.rs into the local cache",
	Long: `Download rustdoc JSON for each crate and store it zstd-compressed in the
cache. Cached crates are used by inputs written as docs.rs:<crate>@<version>.
Version defaults to "latest".`,
	Example: `  eguinet fetch egui@0.31.1 emath@0.31.1 epaint@0.31.1
  eguinet fetch --force egui
  eguinet fetch --list`,
	Run: runFetch,
}

var (
	fetchForce bool
	fetchList  bool
)

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "download even when the crate is cached")
	fetchCmd.Flags().BoolVar(&fetchList, "list", false, "list cached crates")
}

func runFetch(cmd *cobra.Command, args []string) {
	if fetchList {
		refs, err := rustdoc.CachedCrates()
		if err != nil {
			logger.Fatal("listing cache", zap.Error(err))
		}
		if len(refs) == 0 {
			fmt.Println("no crates cached")
		}
		for _, r := range refs {
			fmt.Printf("  %s\n", r)
		}
		return
	}
	if len(args) == 0 {
		logger.Fatal("nothing to fetch; give one or more crate[@version] arguments")
	}

	refs := make([]rustdoc.CrateRef, len(args))
	for i, arg := range args {
		ref, err := rustdoc.ParseCrateRef(arg)
		if err != nil {
			logger.Fatal("bad crate reference", zap.Error(err))
		}
		refs[i] = ref
	}

	ctx, cancel := signalContext()
	defer cancel()

	failed := false
	for _, ref := range refs {
		if !fetchForce && rustdoc.HasCrateCache(ref) {
			fmt.Printf("  %s: cached\n", ref)
			continue
		}

		data, err := rustdoc.FetchRustdocJSON(ctx, ref)
		if err == nil {
			// Reject anything that would not load later.
			_, err = rustdoc.Load(bytes.NewReader(data))
		}
		if err == nil {
			err = rustdoc.SaveCrateCache(ref, data)
		}
		if err != nil {
			fmt.Printf("  %s: error: %v\n", ref, err)
			failed = true
			continue
		}
		fmt.Printf("  %s: %d bytes\n", ref, len(data))
	}
	if failed {
		logger.Fatal("some crates could not be fetched")
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"path"

	"github.com/google/subcommands"

	"scarlet/pkg/fsimpl/cpiofs"
	"scarlet/pkg/vfs"
)

// fsckCommand implements subcommands.Command for "fsck": parses a CPIO
// initramfs archive and walks its tree, a read-only consistency check
// before an image is trusted as a mount root. There is no on-disk
// repair to perform (cpiofs is read-only), so this command's job is
// purely to confirm the archive parses and report what it contains.
type fsckCommand struct {
	verbose bool
}

func (*fsckCommand) Name() string     { return "fsck" }
func (*fsckCommand) Synopsis() string { return "parse and walk a CPIO initramfs archive" }
func (*fsckCommand) Usage() string {
	return "fsck [-v] <archive>\n  Parse a CPIO archive and report its directory tree.\n"
}

func (f *fsckCommand) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&f.verbose, "v", false, "list every entry visited")
}

func (f *fsckCommand) Execute(_ context.Context, fs *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if fs.NArg() != 1 {
		fmt.Println("fsck: expected exactly one archive path")
		return subcommands.ExitUsageError
	}
	data, err := readFile(fs.Arg(0))
	if err != nil {
		fmt.Printf("fsck: %v\n", err)
		return subcommands.ExitFailure
	}
	archive, err := cpiofs.New(data)
	if err != nil {
		fmt.Printf("fsck: malformed archive: %v\n", err)
		return subcommands.ExitFailure
	}

	files, dirs, err := walk(archive, archive.Root(), "/", f.verbose)
	if err != nil {
		fmt.Printf("fsck: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("fsck: %d director%s, %d file%s, archive is consistent\n",
		dirs, plural(dirs, "y", "ies"), files, plural(files, "", "s"))
	return subcommands.ExitSuccess
}

func walk(fs vfs.FileSystemOperations, node *vfs.Node, nodePath string, verbose bool) (files, dirs int, err error) {
	meta, err := fs.Metadata(node)
	if err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", nodePath, err)
	}
	if meta.Kind != vfs.Directory {
		if verbose {
			fmt.Println(nodePath)
		}
		return 1, 0, nil
	}

	if verbose {
		fmt.Println(nodePath + "/")
	}
	dirs = 1
	entries, err := fs.Readdir(node)
	if err != nil {
		return 0, 0, fmt.Errorf("readdir %s: %w", nodePath, err)
	}
	for _, ent := range entries {
		child, err := fs.Lookup(node, ent.Name)
		if err != nil {
			return 0, 0, fmt.Errorf("lookup %s in %s: %w", ent.Name, nodePath, err)
		}
		f, d, err := walk(fs, child, path.Join(nodePath, ent.Name), verbose)
		if err != nil {
			return 0, 0, err
		}
		files += f
		dirs += d
	}
	return files, dirs, nil
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

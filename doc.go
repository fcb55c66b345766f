/*
Package stackfs provides the name resolution and identity core of a stackable union
filesystem.

# Overview

A stackfs instance sits on top of N branches. Every logical name maps to one physical
position per branch, and every physical object maps to exactly one logical inode. The
package does not read or write file content; it answers "which file is this name, on which
branches, and is that answer still good" for a consumer such as the FUSE server in the
fusefs subpackage.

# Key Features

  - Prioritized branch search where branch 0 strictly dominates
  - Cached negative entries so repeated misses do not hit the branches
  - One logical inode per physical object, shared by every name that reaches it
  - Generation stamps that mark cached mappings stale when the branch set changes
  - Reference-counted lower handles with live counts exposed for leak checks

# Architecture

Each branch is mounted as a Volume. A Volume interns LowerInodes by node number and keeps
LowerDentries, including negative ones, for names on that branch. A logical Dentry holds one
Path (LowerDentry plus Volume) per branch, and a logical Inode holds one LowerInode per
branch. The Inode is keyed by its anchor, the LowerInode on the branch where it was found.

# Basic Usage

	package main

	import (
	    "context"

	    "github.com/absfs/stackfs"
	    "github.com/spf13/afero"
	)

	func main() {
	    ctx := context.Background()

	    upper := afero.NewMemMapFs()
	    lower := afero.NewOsFs()

	    fs, err := stackfs.New(ctx,
	        stackfs.WithBranch(stackfs.NewAferoBranch(upper)), // branch 0
	        stackfs.WithBranch(stackfs.NewAferoBranch(lower)), // branch 1
	    )
	    if err != nil {
	        panic(err)
	    }
	    defer fs.Close()

	    d, err := fs.Lookup(ctx, fs.Root(), "etc", stackfs.IntentNone)
	    if err != nil || d == nil {
	        return
	    }
	    defer d.Release()
	}

# Lookup

Lookup searches branches in priority order. The first branch holding the name wins. A
branch reporting the name absent is skipped, and the absence is cached on that branch. Any
other error aborts the lookup with a *LookupError, even when a lower branch would have had
the name. When no branch has the name Lookup returns (nil, nil).

With IntentCreate or IntentRenameTarget the first absence is enough: Lookup returns a
negative dentry positioned on that branch, ready for the caller to create at.

# Generations

Every dentry and inode is stamped with the generation current when it was built. Calling
BumpGeneration after changing the branch set makes every older dentry report Invalid from
Revalidate, so the dentry cache drops it and looks the name up again.

# Thread Safety

All methods are safe for concurrent use. Branch lookups run without any stackfs lock held;
two concurrent lookups of the same physical object always end up sharing one Inode.
*/
package stackfs

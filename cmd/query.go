package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/tree"
)

// NewChildrenCommand returns the command listing the children of a node.
func NewChildrenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "children <id>",
		Short: "List the children of a node, or all its descendants with --recursive",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			recursive, _ := cmd.Flags().GetBool("recursive")

			children, err := s.tree.Children(cmd.Context(), &storage.Node{ID: args[0]}, tree.ChildrenOptions{Recursive: recursive})
			if err != nil {
				return err
			}
			return printJSON(cmd, nonNil(children))
		}),
	}

	cmd.Flags().Bool("recursive", false, "list every descendant instead of the direct children")

	return cmd
}

// NewAncestorsCommand returns the command listing the ancestors of a node.
func NewAncestorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ancestors <id>",
		Short: "List the ancestors of a node, root first",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			ancestors, err := s.tree.Ancestors(cmd.Context(), &storage.Node{ID: args[0]}, storage.NodeFilter{})
			if err != nil {
				return err
			}
			return printJSON(cmd, nonNil(ancestors))
		}),
	}
}

// NewTreeCommand returns the command printing a forest as nested JSON.
func NewTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the whole forest, or the subtree of --root, as nested JSON",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			flags := cmd.Flags()
			rootID, _ := flags.GetString("root")
			minLevel, _ := flags.GetInt("min-level")
			nonRecursive, _ := flags.GetBool("non-recursive")
			omitEmpty, _ := flags.GetBool("omit-empty-children")

			var root *storage.Node
			if rootID != "" {
				root = &storage.Node{ID: rootID}
			}

			forest, err := s.tree.Forest(cmd.Context(), root, tree.TreeOptions{
				MinLevel:          minLevel,
				NonRecursive:      nonRecursive,
				OmitEmptyChildren: omitEmpty,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, nonNil(forest))
		}),
	}

	flags := cmd.Flags()
	flags.String("root", "", "the identifier of the node whose subtree is printed")
	flags.Int("min-level", 0, "the lowest level a top node of the forest may have")
	flags.Bool("non-recursive", false, "print only one level: the children of --root, or the roots")
	flags.Bool("omit-empty-children", false, "leave out the children of leaves instead of printing an empty list")

	return cmd
}

// nonNil returns an empty slice for nil so that JSON output is [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

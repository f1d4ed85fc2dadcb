package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
)

// NewNodeCommand returns the command grouping the node mutations and lookups.
func NewNodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Add, move, remove or get a node",
	}

	cmd.AddCommand(newNodeAddCommand(), newNodeMoveCommand(), newNodeRemoveCommand(), newNodeGetCommand())

	return cmd
}

func newNodeAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a node, under --parent or as a root",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			flags := cmd.Flags()
			id, _ := flags.GetString("id")
			name, _ := flags.GetString("name")
			parent, _ := flags.GetString("parent")
			data, _ := flags.GetString("data")

			node := &storage.Node{ID: id, Name: name, Parent: parent}
			if data != "" {
				node.Data = []byte(data)
			}

			if err := s.tree.Save(cmd.Context(), node); err != nil {
				return err
			}
			s.logger.Info("node added", logger.NodeID(node.ID), zap.String("path", node.Path))

			return printJSON(cmd, node)
		}),
	}

	flags := cmd.Flags()
	flags.String("id", "", "the identifier of the node (a ULID is generated if omitted)")
	flags.String("name", "", "the name of the node")
	flags.String("parent", "", "the identifier of the parent node (a root is added if omitted)")
	flags.String("data", "", "an opaque payload stored with the node")

	return cmd
}

func newNodeMoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a node and its subtree under --parent, or make it a root",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			parent, _ := cmd.Flags().GetString("parent")

			node, err := s.tree.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			node.Parent = parent
			if err := s.tree.Save(cmd.Context(), node); err != nil {
				return err
			}
			s.logger.Info("node moved", logger.NodeID(node.ID), zap.String("path", node.Path))

			return printJSON(cmd, node)
		}),
	}

	cmd.Flags().String("parent", "", "the identifier of the new parent (the node becomes a root if omitted)")

	return cmd
}

func newNodeRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a node, applying the delete policy to its descendants",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			if err := s.tree.Remove(cmd.Context(), &storage.Node{ID: args[0]}); err != nil {
				return err
			}
			s.logger.Info("node removed", logger.NodeID(args[0]))
			return nil
		}),
	}
}

func newNodeGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a node",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
			node, err := s.tree.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, node)
		}),
	}
}

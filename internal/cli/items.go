package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store/jsonstore"
	"github.com/idilsaglam/tada/internal/todo"
	"github.com/idilsaglam/tada/internal/tui"
	"github.com/idilsaglam/tada/internal/ui"
)

func addCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add <title...>",
		Short: "Add a new item (title can be multiple words)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usagef("usage: todo add <title...>")
			}
			title, ok := model.CleanTitle(strings.Join(args, " "))
			if !ok {
				return usagef("add: empty title")
			}
			ctx := cmd.Context()
			a, err := e.synced(ctx)
			if err != nil {
				return err
			}
			if err := wait(ctx, a.Todos.Add(title)); err != nil {
				return fmt.Errorf("add: %w", err)
			}
			ui.OK("added")
			return nil
		},
	}
}

func lsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List items (interactive on a terminal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.synced(ctx)
			if err != nil {
				return err
			}
			if e.opt.Plain || !ui.IsTerminal() {
				printList(a.Todos.List(), e.opt.Group)
				return nil
			}
			signedOut, err := tui.Run(ctx, a.Todos, a.Auth)
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			if signedOut {
				ui.OK("signed out")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&e.opt.Plain, "plain", false, "print the list instead of opening the interactive view")
	return cmd
}

// doneCmd sets the completed flag of one item to value.
func doneCmd(e *env, name string, value bool) *cobra.Command {
	short := "Mark item at 1-based index as done"
	msg := "done"
	if !value {
		short = "Mark item at 1-based index as pending"
		msg = "marked pending"
	}
	return &cobra.Command{
		Use:   name + " <index>",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("usage: todo %s <index>", name)
			}
			ctx := cmd.Context()
			a, err := e.synced(ctx)
			if err != nil {
				return err
			}
			item, err := pick(a.Todos, name, args[0])
			if err != nil {
				return err
			}
			if err := wait(ctx, a.Todos.ToggleComplete(item.ID, value)); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			ui.OK(msg)
			return nil
		},
	}
}

func editCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <index> <title...>",
		Short: "Rename item at 1-based index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return usagef("usage: todo edit <index> <title...>")
			}
			title, ok := model.CleanTitle(strings.Join(args[1:], " "))
			if !ok {
				return usagef("edit: empty title")
			}
			ctx := cmd.Context()
			a, err := e.synced(ctx)
			if err != nil {
				return err
			}
			item, err := pick(a.Todos, "edit", args[0])
			if err != nil {
				return err
			}
			if err := wait(ctx, a.Todos.UpdateTitle(item.ID, title)); err != nil {
				return fmt.Errorf("edit: %w", err)
			}
			ui.OK("renamed")
			return nil
		},
	}
}

func rmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <index>",
		Short: "Remove item at 1-based index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("usage: todo rm <index>")
			}
			ctx := cmd.Context()
			a, err := e.synced(ctx)
			if err != nil {
				return err
			}
			item, err := pick(a.Todos, "rm", args[0])
			if err != nil {
				return err
			}
			if err := wait(ctx, a.Todos.Remove(item.ID)); err != nil {
				return fmt.Errorf("rm: %w", err)
			}
			ui.OK("removed")
			return nil
		},
	}
}

func importCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Add the items of a todos.json file to your list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usagef("usage: todo import [file]")
			}
			path, err := jsonPath(args)
			if err != nil {
				return err
			}
			entries, err := jsonstore.Load(path)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			ctx := cmd.Context()
			a, err := e.synced(ctx)
			if err != nil {
				return err
			}

			imported := 0
			for _, entry := range entries {
				if _, ok := model.CleanTitle(entry.Title); !ok {
					continue
				}
				if err := wait(ctx, a.Todos.AddItem(entry.Title, entry.Done)); err != nil {
					return fmt.Errorf("import %q: %w", entry.Title, err)
				}
				imported++
			}
			ui.OK(fmt.Sprintf("imported %d of %d", imported, len(entries)))
			return nil
		},
	}
}

func exportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write your list to a todos.json file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usagef("usage: todo export [file]")
			}
			path, err := jsonPath(args)
			if err != nil {
				return err
			}
			a, err := e.synced(cmd.Context())
			if err != nil {
				return err
			}
			items := a.Todos.List()
			if err := jsonstore.Save(path, jsonstore.FromItems(items)); err != nil {
				return fmt.Errorf("save: %w", err)
			}
			ui.OK(fmt.Sprintf("exported %d to %s", len(items), path))
			return nil
		},
	}
}

func jsonPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return jsonstore.DefaultPath()
}

// pick resolves a 1-based index against the visible list.
func pick(s *todo.Store, name, arg string) (model.TodoItem, error) {
	items := s.List()
	i, err := index(name, arg, len(items))
	if err != nil {
		return model.TodoItem{}, err
	}
	return items[i], nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func (a *App) newKnowledgeCommand() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:     "knowledge",
		Aliases: []string{"kb", "docs"},
		Short:   "Manage a department's knowledge base",
	}
	cmd.PersistentFlags().StringVarP(&department, "department", "d", "", "department id or slug")

	list := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			dept, err := resolveDepartment(cmd.Context(), rt, department)
			if err != nil {
				return err
			}
			docs, err := rt.Client.ListDocuments(cmd.Context(), dept.ID.String())
			if err != nil {
				return err
			}
			return a.emit("knowledge list", docs, func(w io.Writer) {
				if len(docs) == 0 {
					fmt.Fprintln(w, DimStyle.Render("No documents in "+dept.Name+"."))
					return
				}
				rows := make([][]string, len(docs))
				for i, d := range docs {
					rows[i] = []string{d.ID.String(), d.Status, fmt.Sprint(d.ChunkCount), formatSize(d.FileSize), formatTime(d.CreatedAt), d.Title}
				}
				table(w, []Column{{Title: "ID"}, {Title: "STATUS"}, {Title: "CHUNKS"}, {Title: "SIZE"}, {Title: "ADDED"}, {Title: "TITLE", Width: 50}}, rows)
			})
		},
	}

	var title string
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			dept, err := resolveDepartment(cmd.Context(), rt, department)
			if err != nil {
				return err
			}
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			name := filepath.Base(path)
			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(name, filepath.Ext(name))
			}
			doc, err := rt.Client.UploadDocument(cmd.Context(), dept.ID.String(), title, name, f)
			if err != nil {
				return err
			}
			return a.done("knowledge upload", doc, "Uploaded %q to %s (%s, status %s)", doc.Title, dept.Name, doc.ID, doc.Status)
		},
	}
	upload.Flags().StringVarP(&title, "title", "t", "", "document title (default: file name)")

	var yes bool
	remove := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			dept, err := resolveDepartment(cmd.Context(), rt, department)
			if err != nil {
				return err
			}
			id := args[0]
			if err := a.confirm("delete this document", map[string]string{"Document": id, "Department": dept.Name},
				ConfirmationOptions{Yes: yes, JSONMode: a.flags.JSON}); err != nil {
				return err
			}
			if err := rt.Client.DeleteDocument(cmd.Context(), dept.ID.String(), id); err != nil {
				return err
			}
			return a.done("knowledge delete", map[string]string{"id": id}, "Deleted document %s", id)
		},
	}
	bindYes(remove.Flags(), &yes)

	cmd.AddCommand(list, upload, remove)
	return cmd
}

func formatSize(n int64) string {
	const unit = 1024
	if n <= 0 {
		return "-"
	}
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

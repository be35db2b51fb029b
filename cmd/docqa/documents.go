package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-docqa-web/internal/app"
	"github.com/tbourn/go-docqa-web/internal/documents"
	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/security"
	"github.com/tbourn/go-docqa-web/internal/utils"
)

func (c *cli) documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Browse and manage uploaded documents",
	}

	var page, limit int
	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireRoute(a, "/documents"); err != nil {
					return err
				}
				p, l := utils.ParsePage(strconv.Itoa(page), strconv.Itoa(limit))
				res, err := a.Documents.List(ctx, documents.ListOptions{Page: p, Limit: l, Search: search})
				if err != nil {
					return err
				}
				return c.emit(cmd.OutOrStdout(), res, func(w io.Writer) { printDocuments(w, res) })
			})
		},
	}
	list.Flags().IntVar(&page, "page", utils.DefaultPage, "Page number")
	list.Flags().IntVar(&limit, "limit", utils.DefaultLimit, "Documents per page (max 100)")
	list.Flags().StringVar(&search, "search", "", "Filter by name")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireRoute(a, "/documents"); err != nil {
					return err
				}
				d, err := a.Documents.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return c.emit(cmd.OutOrStdout(), d, func(w io.Writer) { printDocument(w, d) })
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireRoute(a, "/documents"); err != nil {
					return err
				}
				if err := a.Documents.Delete(ctx, args[0]); err != nil {
					return err
				}
				if u := a.Store.CurrentUser(); u != nil {
					a.Analytics.TrackUserAction("delete_document", "documents", args[0], u.ID)
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Deleted document ")+idStyle.Render(args[0]))
				return nil
			})
		},
	}

	var outPath string
	download := &cobra.Command{
		Use:   "download <id>",
		Short: "Save a document's content to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireRoute(a, "/documents"); err != nil {
					return err
				}
				rc, name, err := a.Documents.Download(ctx, args[0])
				if err != nil {
					return err
				}
				defer rc.Close()

				target := outPath
				if target == "" {
					target = security.SanitizeFileName(name)
					if target == "" {
						target = security.SanitizeFileName(args[0])
					}
				}
				if target == "-" {
					_, err = io.Copy(cmd.OutOrStdout(), rc)
					return err
				}
				n, err := writeFile(target, rc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%s)\n", okStyle.Render("Saved"), target, formatSize(n))
				return nil
			})
		},
	}
	download.Flags().StringVarP(&outPath, "out", "O", "", "Output file, or - for stdout (default: the document's name)")

	cmd.AddCommand(list, get, del, download)
	return cmd
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// fileSource describes a local file, sniffing the content type when the
// caller gives none.
func fileSource(path, contentType string) (documents.Source, error) {
	st, err := os.Stat(path)
	if err != nil {
		return documents.Source{}, err
	}
	if st.IsDir() {
		return documents.Source{}, fmt.Errorf("%s is a directory", path)
	}
	if contentType == "" {
		f, err := os.Open(path)
		if err != nil {
			return documents.Source{}, err
		}
		contentType, err = security.DetectType(f)
		f.Close()
		if err != nil {
			return documents.Source{}, fmt.Errorf("detect type of %s: %w", path, err)
		}
	}
	return documents.Source{
		Name: filepath.Base(path),
		Size: st.Size(),
		Type: contentType,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// parseMetadata accepts key=value pairs or a single JSON object.
func parseMetadata(pairs []string, raw string) (map[string]any, error) {
	meta := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("metadata %q: want key=value", p)
		}
		meta[strings.TrimSpace(k)] = v
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func (c *cli) uploadCmd() *cobra.Command {
	var contentType, metaJSON string
	var meta []string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for question answering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := fileSource(args[0], contentType)
			if err != nil {
				return err
			}
			metadata, err := parseMetadata(meta, metaJSON)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireRoute(a, "/documents"); err != nil {
					return err
				}
				events, err := a.Documents.Upload(ctx, src, metadata)
				if err != nil {
					return err
				}
				a.Analytics.TrackFileUpload(src.Name, src.Size, a.Store.CurrentUser().ID)

				stderr := cmd.ErrOrStderr()
				last := -1
				doc, err := documents.Wait(events, func(ev domain.UploadEvent) {
					if ev.Progress != last {
						last = ev.Progress
						fmt.Fprintf(stderr, "\r%s", mutedStyle.Render(documents.DescribeEvent(ev)))
					}
				})
				if last >= 0 {
					fmt.Fprintln(stderr)
				}
				if err != nil {
					return err
				}
				return c.emit(cmd.OutOrStdout(), doc, func(w io.Writer) {
					fmt.Fprintln(w, okStyle.Render(documents.DescribeEvent(domain.UploadEvent{Progress: 100, Document: doc})))
				})
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "Content type (detected from the file when empty)")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "Metadata key=value (repeatable)")
	cmd.Flags().StringVar(&metaJSON, "metadata", "", "Metadata as a JSON object")
	return cmd
}

// validation is the result of a local policy check.
type validation struct {
	Name   string   `json:"name"   yaml:"name"`
	Size   int64    `json:"size"   yaml:"size"`
	Type   string   `json:"type"   yaml:"type"`
	Valid  bool     `json:"valid"  yaml:"valid"`
	Errors []string `json:"errors" yaml:"errors"`
}

func (c *cli) validateCmd() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a file against the upload policy without uploading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			src, err := fileSource(args[0], contentType)
			if err != nil {
				return err
			}
			errs := security.NewValidator(cfg.UploadMaxBytes).Violations(security.FileInfo{Name: src.Name, Size: src.Size, Type: src.Type})
			res := validation{Name: src.Name, Size: src.Size, Type: src.Type, Valid: len(errs) == 0, Errors: errs}
			if res.Errors == nil {
				res.Errors = []string{}
			}
			if err := c.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				if res.Valid {
					fmt.Fprintf(w, "%s %s (%s, %s)\n", okStyle.Render("OK"), res.Name, res.Type, formatSize(res.Size))
					return
				}
				fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Rejected"), res.Name)
				for _, e := range res.Errors {
					fmt.Fprintf(w, "  - %s\n", e)
				}
			}); err != nil {
				return err
			}
			if !res.Valid {
				return domain.NewValidationError(errs)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "Content type (detected from the file when empty)")
	return cmd
}

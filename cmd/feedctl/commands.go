package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/client"
	"github.com/sujalbistaa/feedsync/internal/compose"
	"github.com/sujalbistaa/feedsync/internal/engagement"
	"github.com/sujalbistaa/feedsync/internal/feed"
	"github.com/sujalbistaa/feedsync/internal/models"
	"github.com/sujalbistaa/feedsync/internal/prefs"
)

// maxSearchPages bounds how far the like command pages through the feed
// looking for a post.
const maxSearchPages = 10

func newRegisterCmd(g *globalOptions) *cobra.Command {
	var cr models.Credentials
	var fullName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			if fullName != "" {
				cr.FullName = &fullName
			}
			profile, err := a.client.Register(cmd.Context(), cr)
			if err != nil {
				return err
			}
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), profile)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", profile.Username, profile.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&cr.Username, "username", "", "username")
	cmd.Flags().StringVar(&cr.Email, "email", "", "email address")
	cmd.Flags().StringVar(&cr.Password, "password", "", "password")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd(g *globalOptions) *cobra.Command {
	var cr models.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a bearer token",
		Long: `Log in and print a bearer token.

Examples:
  eval "$(feedctl login --username ana --password secret123)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			tok, err := a.client.Login(cmd.Context(), cr)
			if err != nil {
				return err
			}
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), tok)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export CLIENT_TOKEN=%s\n", tok.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&cr.Username, "username", "", "username")
	cmd.Flags().StringVar(&cr.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newMeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			me, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), me)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", me.Username, me.ID)
			printPrefs(cmd.OutOrStdout(), me.Preferences)
			return nil
		},
	}
}

type feedFlags struct {
	mode  string
	pages int
}

func (f *feedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "all", "feed mode: all or personalized")
	cmd.Flags().IntVar(&f.pages, "pages", 1, "number of pages to load")
}

// loadFeed loads the first page of the requested mode, then up to pages-1
// more while the server reports more.
func (a *app) loadFeed(ctx context.Context, f feedFlags) error {
	mode, err := models.ParseFeedMode(f.mode)
	if err != nil {
		return err
	}
	if mode == models.ModePersonalized {
		if err := a.feed.SwitchMode(ctx, mode); err != nil {
			return err
		}
	} else if err := a.feed.Load(ctx, mode, 1); err != nil {
		return err
	}
	for i := 1; i < f.pages; i++ {
		if err := a.feed.LoadMore(ctx); err != nil {
			if errors.Is(err, feed.ErrNoMore) {
				return nil
			}
			return err
		}
	}
	return nil
}

// findPost pages through the feed until postID is loaded.
func (a *app) findPost(ctx context.Context, f feedFlags, postID string) error {
	if err := a.loadFeed(ctx, f); err != nil {
		return err
	}
	for i := 0; i < maxSearchPages; i++ {
		if _, ok := a.feed.Post(postID); ok {
			return nil
		}
		if err := a.feed.LoadMore(ctx); err != nil {
			if errors.Is(err, feed.ErrNoMore) {
				break
			}
			return err
		}
	}
	if _, ok := a.feed.Post(postID); ok {
		return nil
	}
	return fmt.Errorf("post %s: %w", postID, engagement.ErrPostNotFound)
}

func newFeedCmd(g *globalOptions) *cobra.Command {
	var f feedFlags
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List posts",
		Long: `List posts from the "all" feed or the personalized feed.

Examples:
  feedctl feed
  feedctl feed --mode personalized --pages 3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			if err := a.loadFeed(cmd.Context(), f); err != nil {
				return err
			}
			state := a.feed.Snapshot()
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), state.Posts)
			}
			printPosts(cmd.OutOrStdout(), state.Posts)
			if state.HasMore {
				fmt.Fprintf(cmd.OutOrStdout(), "\nmore posts available (next page %d)\n", state.Cursor)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newLikeCmd(g *globalOptions) *cobra.Command {
	var f feedFlags
	cmd := &cobra.Command{
		Use:   "like <post-id>",
		Short: "Toggle your like on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.findPost(ctx, f, args[0]); err != nil {
				return err
			}
			res, err := a.engage.ToggleLike(ctx, args[0])
			if err != nil {
				return err
			}
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			verb := "unliked"
			if res.IsLiked {
				verb = "liked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d likes)\n", verb, res.PostID, res.LikesCount)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newCommentsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comments <post-id>",
		Short: "List comments on a post, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			thread := a.engage.Thread(args[0])
			if err := thread.Open(cmd.Context()); err != nil {
				return err
			}
			comments := thread.Comments()
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), comments)
			}
			printComments(cmd.OutOrStdout(), comments)
			return nil
		},
	}
}

func newCommentCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			cm, err := a.engage.Thread(args[0]).Add(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), cm)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commented %s\n", cm.ID)
			return nil
		},
	}
}

func newUncommentCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uncomment <post-id> <comment-id>",
		Short: "Delete one of your comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			if err := a.engage.Thread(args[0]).Delete(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted comment %s\n", args[1])
			return nil
		},
	}
}

func newPostCmd(g *globalOptions) *cobra.Command {
	var tags, categories, imageURL string
	cmd := &cobra.Command{
		Use:   "post <text>",
		Short: "Create a post",
		Long: `Create a post. Posts held back by moderation are stored but do not
appear in feeds.

Examples:
  feedctl post "Trying out generics" --tags go,generics`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			np := models.NewPost{
				Content:    strings.Join(args, " "),
				Tags:       compose.ParseList(tags),
				Categories: compose.ParseList(categories),
			}
			if imageURL != "" {
				np.ImageURL = &imageURL
			}
			p, err := compose.New(a.client, a.feed, a.log.Named("compose")).Submit(cmd.Context(), np)
			if err != nil {
				return err
			}
			if g.asJSON {
				return printJSON(cmd.OutOrStdout(), p)
			}
			if p.Rejected() {
				details := ""
				if p.Moderation != nil {
					details = ": " + p.Moderation.Details
				}
				fmt.Fprintf(cmd.OutOrStdout(), "post %s held back by moderation%s\n", p.ID, details)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted %s\n", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&tags, "tags", "", "comma separated tags")
	cmd.Flags().StringVar(&categories, "categories", "", "comma separated categories")
	cmd.Flags().StringVar(&imageURL, "image-url", "", "image URL")
	return cmd
}

func newDeleteCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			if err := compose.New(a.client, a.feed, a.log.Named("compose")).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted post %s\n", args[0])
			return nil
		},
	}
}

func newPrefsCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or edit feed preferences",
		Long: `Show or edit feed preferences. Each edit is committed immediately.

Examples:
  feedctl prefs show
  feedctl prefs add-tag golang
  feedctl prefs remove-interest cooking`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show committed preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			ed := prefs.NewEditor(a.client, a.feed, a.log.Named("prefs"))
			if err := ed.Load(cmd.Context()); err != nil {
				return err
			}
			return a.printCommitted(cmd.OutOrStdout(), g, ed)
		},
	}

	edit := func(use, short string, fn func(*prefs.Editor, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <value>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(g)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				ed := prefs.NewEditor(a.client, a.feed, a.log.Named("prefs"))
				if err := ed.Load(ctx); err != nil {
					return err
				}
				ed.Begin()
				if err := fn(ed, args[0]); err != nil {
					ed.Discard()
					return err
				}
				if !ed.Dirty() {
					ed.Discard()
					return a.printCommitted(cmd.OutOrStdout(), g, ed)
				}
				if err := ed.Commit(ctx); err != nil {
					return err
				}
				return a.printCommitted(cmd.OutOrStdout(), g, ed)
			},
		}
	}

	cmd.AddCommand(
		show,
		edit("add-tag", "Add a favorite tag", (*prefs.Editor).AddFavoriteTag),
		edit("remove-tag", "Remove a favorite tag", func(e *prefs.Editor, v string) error {
			e.RemoveFavoriteTag(v)
			return nil
		}),
		edit("add-interest", "Add an interest", (*prefs.Editor).AddInterest),
		edit("remove-interest", "Remove an interest", func(e *prefs.Editor, v string) error {
			e.RemoveInterest(v)
			return nil
		}),
	)
	return cmd
}

func (a *app) printCommitted(w io.Writer, g *globalOptions, ed *prefs.Editor) error {
	p := ed.Committed()
	if g.asJSON {
		return printJSON(w, p)
	}
	printPrefs(w, p)
	return nil
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	var f feedFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load the feed and print live events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.loadFeed(ctx, f); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printPosts(out, a.feed.Snapshot().Posts)

			deletions := client.DeletionsTo(a.feed, a.log.Named("stream"))
			return a.client.Stream(ctx, func(eventType string, data json.RawMessage) {
				deletions(eventType, data)
				switch eventType {
				case models.EventNewPost:
					var p models.Post
					if err := json.Unmarshal(data, &p); err != nil {
						a.log.Warn("bad new_post event", zap.Error(err))
						return
					}
					fmt.Fprintf(out, "[%s] new post %s by %s: %s\n", now(), p.ID, p.Username, oneLine(p.Content, 60))
				case models.EventLike:
					var res struct {
						PostID     string `json:"post_id"`
						LikesCount int    `json:"likes_count"`
					}
					if err := json.Unmarshal(data, &res); err == nil {
						fmt.Fprintf(out, "[%s] %s now has %d likes\n", now(), res.PostID, res.LikesCount)
					}
				case models.EventPostDeleted:
					fmt.Fprintf(out, "[%s] post deleted, %d posts in feed\n", now(), len(a.feed.Snapshot().Posts))
				case models.EventComment:
					fmt.Fprintf(out, "[%s] new comment\n", now())
				}
			})
		},
	}
	f.register(cmd)
	return cmd
}

func now() string { return time.Now().Format(time.Kitchen) }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPosts(w io.Writer, posts []models.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "no posts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tLIKES\tCOMMENTS\tTAGS\tCONTENT")
	for _, p := range posts {
		likes := fmt.Sprint(p.LikesCount)
		if p.IsLikedByUser {
			likes += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Username, likes, p.CommentsCount, strings.Join(p.Tags, ","), oneLine(p.Content, 50))
	}
	_ = tw.Flush()
}

func printComments(w io.Writer, comments []models.Comment) {
	if len(comments) == 0 {
		fmt.Fprintln(w, "no comments")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tWHEN\tCONTENT")
	for _, c := range comments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Username, c.CreatedAt.Format(time.DateTime), oneLine(c.Content, 60))
	}
	_ = tw.Flush()
}

func printPrefs(w io.Writer, p models.Preferences) {
	fmt.Fprintf(w, "favorite tags: %s\n", orNone(p.FavoriteTags))
	fmt.Fprintf(w, "interests:     %s\n", orNone(p.Interests))
}

func orNone(v []string) string {
	if len(v) == 0 {
		return "(none)"
	}
	return strings.Join(v, ", ")
}

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

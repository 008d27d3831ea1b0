package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/constants"
	"github.com/streed/notesai/internal/models"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Long:  `List your notes, newest first, with their ID, title and creation date.`,
	RunE:  runList,
}

var (
	listLimit     int
	listOffset    int
	listShort     bool
	listFolder    int
	listFavorites bool
	listDeleted   bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 20, "Maximum number of notes to display")
	listCmd.Flags().IntVarP(&listOffset, "offset", "o", 0, "Number of notes to skip")
	listCmd.Flags().BoolVarP(&listShort, "short", "s", false, "Show only ID and title")
	listCmd.Flags().IntVar(&listFolder, "folder", 0, "Only notes in this folder")
	listCmd.Flags().BoolVar(&listFavorites, "favorites", false, "Only favorite notes")
	listCmd.Flags().BoolVar(&listDeleted, "deleted", false, "Include notes in the trash")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	opts := models.ListOptions{
		Limit:          listLimit,
		Offset:         listOffset,
		FavoritesOnly:  listFavorites,
		IncludeDeleted: listDeleted,
	}
	if listFolder > 0 {
		opts.FolderID = &listFolder
	}

	notes, err := svc.Notes.List(ctx, user.ID, opts)
	if err != nil {
		return fmt.Errorf("failed to list notes: %w", err)
	}

	if len(notes) == 0 {
		fmt.Println("No notes found.")
		return nil
	}

	fmt.Printf("Found %d notes:\n\n", len(notes))

	for _, note := range notes {
		if listShort {
			fmt.Printf("[%d] %s%s\n", note.ID, note.Title, noteMarkers(note))
			continue
		}
		fmt.Printf("ID: %d%s\n", note.ID, noteMarkers(note))
		fmt.Printf("Title: %s\n", note.Title)
		fmt.Printf("Created: %s\n", formatTime(note.CreatedAt))
		fmt.Printf("Preview: %s\n", strings.ReplaceAll(note.Preview(constants.PreviewLength), "\n", " "))
		fmt.Println(strings.Repeat("-", 60))
	}

	return nil
}

func noteMarkers(n *models.Note) string {
	var m []string
	if n.Favorite {
		m = append(m, "★")
	}
	if n.IsDeleted {
		m = append(m, "deleted")
	}
	if n.IndexStatus != models.IndexIndexed {
		m = append(m, "index "+string(n.IndexStatus))
	}
	if len(m) == 0 {
		return ""
	}
	return " (" + strings.Join(m, ", ") + ")"
}

func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		minutes := int(diff.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

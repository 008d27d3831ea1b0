package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/streed/notesai/internal/auth"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and API tokens",
}

var userCreateCmd = &cobra.Command{
	Use:   "create [username]",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  runUserList,
}

var userTokenCmd = &cobra.Command{
	Use:   "token [username]",
	Short: "Issue an API token for a user",
	Long: `Issue a bearer token for the HTTP API. The token is signed with the
configured jwt-secret and expires after token-ttl-hours.

  curl -H "Authorization: Bearer $(notesai user token alice)" http://localhost:8080/api/v1/notes/`,
	Args: cobra.ExactArgs(1),
	RunE: runUserToken,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userTokenCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	u, err := svc.Users.Create(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Created user %s (ID: %d)\n", u.Username, u.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	users, err := svc.Users.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "ID\tUSERNAME\tCREATED\n")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Username, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runUserToken(cmd *cobra.Command, args []string) error {
	u, err := svc.Users.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	authn, err := auth.New(appConfig.JWTSecret, appConfig.TokenTTL())
	if err != nil {
		return fmt.Errorf("%w (run 'notesai init' or 'notesai config set jwt-secret <secret>')", err)
	}
	token, expires, err := authn.Issue(u.ID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Token for %s expires %s\n", u.Username, expires.Local().Format("2006-01-02 15:04"))
	return nil
}

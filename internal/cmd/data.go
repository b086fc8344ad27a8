package cmd

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/client"
	"github.com/spf13/cobra"
)

var (
	courseFilters map[string]string
	gradeCourseID string
)

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List courses",
	Long: `List courses from the LMS backend.

Examples:
  lmsctl courses
  lmsctl courses --filter published=true -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(deps *app.Dependencies) error {
			query := url.Values{}
			for k, v := range courseFilters {
				query.Set(k, v)
			}
			courses, err := deps.Client.Courses().List(cmd.Context(), query)
			if err != nil {
				return backendError("list courses", err)
			}
			return printOutput(cmd.OutOrStdout(), outputFormat, courses, func(out io.Writer) error {
				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tINSTRUCTOR\tPUBLISHED")
				for _, c := range courses {
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", c.ID, c.Title, c.Instructor, c.Published)
				}
				return w.Flush()
			})
		})
	},
}

var gradesCmd = &cobra.Command{
	Use:   "grades",
	Short: "List the signed-in student's grades",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(deps *app.Dependencies) error {
			if err := deps.Manager.CheckAuth(cmd.Context()); err != nil {
				return backendError("check session", err)
			}
			snap := deps.Manager.Snapshot()
			if !snap.Authenticated {
				return fmt.Errorf("not signed in; run 'lmsctl login'")
			}

			query := url.Values{"studentId": {snap.Session.UserID}}
			if gradeCourseID != "" {
				query.Set("courseId", gradeCourseID)
			}
			grades, err := deps.Client.Grades().List(cmd.Context(), query)
			if err != nil {
				return backendError("list grades", err)
			}
			return printOutput(cmd.OutOrStdout(), outputFormat, grades, func(out io.Writer) error {
				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "COURSE\tITEM\tSCORE\tPERCENT")
				for _, g := range grades {
					item := g.AssignmentID
					if item == "" {
						item = g.ExamID
					}
					fmt.Fprintf(w, "%s\t%s\t%.1f/%.1f\t%.0f%%\n", g.CourseID, item, g.Score, g.MaxScore, g.Percent())
				}
				return w.Flush()
			})
		})
	},
}

// backendError turns a client failure into a message for the terminal
func backendError(op string, err error) error {
	switch {
	case client.IsNetworkError(err):
		return fmt.Errorf("%s: backend unreachable: %w", op, err)
	case client.IsAuthAbsent(err):
		return fmt.Errorf("%s: not signed in; run 'lmsctl login'", op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func init() {
	coursesCmd.Flags().StringToStringVar(&courseFilters, "filter", nil, "Query filters as key=value")
	gradesCmd.Flags().StringVar(&gradeCourseID, "course", "", "Only grades for this course ID")
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(gradesCmd)
}

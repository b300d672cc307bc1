package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/trezcool/quizboard/core/classroom"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func (cli *commandLine) groups(ctx context.Context) error {
	if err := cli.requireAuth(); err != nil {
		return err
	}
	grps, err := cli.api.ListGroups(ctx)
	if err != nil {
		return err
	}
	if len(grps) == 0 {
		fmt.Fprintln(cli.out, "No groups yet.")
		return nil
	}

	w := newTable(cli.out)
	fmt.Fprintln(w, "ID\tTITLE\tROLE\tCODE")
	for _, grp := range grps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", grp.ID, grp.Title, grp.Role, grp.GroupCode)
	}
	return w.Flush()
}

func (cli *commandLine) join(ctx context.Context, code string) error {
	if err := cli.requireAuth(); err != nil {
		return err
	}
	form := classroom.JoinGroupForm{GroupCode: code}
	if err := form.Validate(cli.validator); err != nil {
		return err
	}
	resp, err := cli.api.JoinGroup(ctx, form.Build())
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, resp.Message)
	return nil
}

func (cli *commandLine) tasks(ctx context.Context, groupID int) error {
	if err := cli.requireAuth(); err != nil {
		return err
	}
	tasks, err := cli.api.ListTasks(ctx, groupID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cli.out, "No tasks yet.")
		return nil
	}

	w := newTable(cli.out)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tREQUIRED\tQUESTIONS")
	for _, task := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", task.ID, task.Title, task.TaskType, yesNo(task.IsRequired), len(task.Questions))
	}
	return w.Flush()
}

func (cli *commandLine) submissions(ctx context.Context, taskID int) error {
	if err := cli.requireAuth(); err != nil {
		return err
	}
	subs, err := cli.api.ListSubmissions(ctx, taskID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Fprintln(cli.out, "No submissions yet.")
		return nil
	}

	w := newTable(cli.out)
	fmt.Fprintln(w, "ID\tUSER\tSUBMITTED\tSCORE")
	for _, sub := range subs {
		score := "Not graded"
		if sub.Score.Valid {
			score = strconv.FormatFloat(sub.Score.Float64, 'f', -1, 64)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", sub.ID, sub.Username, sub.SubmittedAt.Display(), score)
	}
	return w.Flush()
}

func (cli *commandLine) grade(ctx context.Context, submissionID int, raw string) error {
	if err := cli.requireAuth(); err != nil {
		return err
	}
	score, err := classroom.ParseScore(raw)
	if err != nil {
		return err
	}
	resp, err := cli.api.UpdateSubmissionScore(ctx, submissionID, score)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, resp.Message)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

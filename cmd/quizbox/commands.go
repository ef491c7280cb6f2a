package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizbox/internal/autosave"
	"quizbox/internal/chat"
	"quizbox/internal/form"
	"quizbox/internal/gate"
	"quizbox/internal/model"
	"quizbox/internal/poller"
	"quizbox/internal/schema"
	"quizbox/internal/store"
	"quizbox/internal/upload"
)

func (a *app) cmdSignup(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("signup needs <email> <password>")
	}
	if err := a.session.SignUp(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("account created, sign in with: quizbox signin", args[0], "...")
	return nil
}

func (a *app) cmdSignin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("signin needs <email> <password>")
	}
	userID, err := a.session.SignIn(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("signed in as user %d\n", userID)
	return nil
}

func (a *app) cmdProfile(ctx context.Context, args []string) error {
	userID, err := a.session.UserID(ctx)
	if err != nil {
		return err
	}
	if len(args) == 2 {
		if err := a.client.UpdateProfile(ctx, userID, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("profile updated")
		return nil
	}
	p, err := a.client.Profile(ctx, userID)
	if err != nil {
		// Fall back to the soft cache when the backend is unreachable.
		var cached model.Profile
		if cacheErr := a.store.Get(ctx, store.KeyUserProfile, &cached); cacheErr == nil {
			fmt.Printf("%s %s <%s> (cached)\n", cached.NameFirst, cached.NameLast, cached.Email)
			return nil
		}
		return err
	}
	if err := a.store.Set(ctx, store.KeyUserProfile, p); err != nil {
		a.log.Debug("profile cache write failed", zap.Error(err))
	}
	fmt.Printf("%s %s <%s>\n", p.NameFirst, p.NameLast, p.Email)
	return nil
}

// listRow is one rendered line of the questionnaire listing.
type listRow struct {
	questionnaire model.Questionnaire
	status        string
	complete      bool
}

// buildListing fetches the catalog, fans out the completion checks across
// all questionnaires at once, and joins on the verdict map before rendering.
func (a *app) buildListing(ctx context.Context, v model.Variant, userID int) ([]listRow, error) {
	list, err := a.client.Questionnaires(ctx, v)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(list))
	for _, q := range list {
		ids = append(ids, q.ID)
	}
	verdicts := gate.NewChecker(a.client, v, userID, a.log).CheckAll(ctx, ids)

	rows := make([]listRow, 0, len(list))
	for _, q := range list {
		status := "In coda"
		if st, err := a.client.AIStatus(ctx, v, userID, q.ID); err == nil {
			status = st.Label()
		}
		rows = append(rows, listRow{questionnaire: q, status: status, complete: verdicts[q.ID]})
	}
	return rows, nil
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	v, _ := variantArgs(args)
	userID, err := a.session.UserID(ctx)
	if err != nil {
		return err
	}
	rows, err := a.buildListing(ctx, v, userID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		complete := "incompleto"
		if r.complete {
			complete = "completo"
		}
		fmt.Printf("%4d  %-40s  %-12s  %s\n", r.questionnaire.ID, r.questionnaire.Title, complete, r.status)
	}
	return nil
}

func (a *app) cmdInit(ctx context.Context, args []string) error {
	v, rest := variantArgs(args)
	userID, questionnaireID, err := a.scope(ctx, rest)
	if err != nil {
		return err
	}
	tracker := poller.New(a.client, v, userID, a.log)
	defer tracker.StopAll()

	complete := gate.NewChecker(a.client, v, userID, a.log).Check(ctx, questionnaireID)
	stats, err := tracker.Init(ctx, questionnaireID, complete)
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %d jobs (%d duplicates, %d total)\n", stats.Enqueued, stats.Duplicates, stats.Total)
	return nil
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	v, rest := variantArgs(args)
	userID, questionnaireID, err := a.scope(ctx, rest)
	if err != nil {
		return err
	}
	tracker := poller.New(a.client, v, userID, a.log)
	defer tracker.StopAll()
	tracker.Start(questionnaireID)

	ticker := time.NewTicker(poller.DefaultInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st, ok := tracker.Status(questionnaireID)
			if !ok {
				continue
			}
			fmt.Printf("%s: %d/%d done, %d running, %d queued, %d failed\n",
				st.Label(), st.Done, st.EffectiveTotal(), st.Running, st.Queued, st.Error)
			if st.Terminal() {
				return nil
			}
		}
	}
}

func (a *app) cmdSummary(ctx context.Context, args []string) error {
	v, rest := variantArgs(args)
	userID, questionnaireID, err := a.scope(ctx, rest)
	if err != nil {
		return err
	}
	details, err := a.client.AIDetails(ctx, v, userID, questionnaireID, "")
	if err != nil {
		return err
	}
	if len(details) == 0 {
		fmt.Println("no summary available yet, run: quizbox watch", questionnaireID)
		return nil
	}
	for section, html := range details {
		fmt.Printf("== %s ==\n%s\n\n", section, html)
	}
	return nil
}

func (a *app) cmdChat(ctx context.Context, args []string) error {
	userID, questionnaireID, err := a.scope(ctx, args)
	if err != nil {
		return err
	}
	mgr := chat.NewManager(a.client, a.store, a.log)
	mgr.Start(0)
	if err := mgr.ResolveResult(ctx, model.VariantPremium, userID, questionnaireID); err != nil {
		return err
	}

	fmt.Println("chat started; empty line or ctrl-d to quit, :reset for a new session")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			return nil
		case line == ":reset":
			mgr.Reset()
			if err := mgr.ResolveResult(ctx, model.VariantPremium, userID, questionnaireID); err != nil {
				return err
			}
			fmt.Println("new session started")
			continue
		}
		reply, err := mgr.Send(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "chat:", err)
			continue
		}
		fmt.Println(reply.Reply)
	}
}

// scope resolves the signed-in user plus the questionnaire id argument.
func (a *app) scope(ctx context.Context, args []string) (userID, questionnaireID int, err error) {
	if len(args) != 1 {
		return 0, 0, fmt.Errorf("expected a questionnaire id")
	}
	questionnaireID, err = strconv.Atoi(args[0])
	if err != nil || questionnaireID <= 0 {
		return 0, 0, fmt.Errorf("invalid questionnaire id %q", args[0])
	}
	userID, err = a.session.UserID(ctx)
	if err != nil {
		return 0, 0, err
	}
	ok, err := a.session.TokenValid(ctx)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("session expired, run: quizbox signin")
	}
	return userID, questionnaireID, nil
}

func (a *app) cmdFill(ctx context.Context, args []string) error {
	v, rest := variantArgs(args)
	userID, questionnaireID, err := a.scope(ctx, rest)
	if err != nil {
		return err
	}

	questions, err := a.client.Questions(ctx, v, questionnaireID)
	if err != nil {
		return err
	}
	answers, err := a.client.Answers(ctx, v, userID, questionnaireID)
	if err != nil {
		return err
	}

	wizard := form.New(questions, form.DefaultPageSize)
	wizard.Patch(answers)

	comp := schema.NewCompilerWithCache(16)
	wizard.SetValidator(func(set model.AnswerSet) error {
		return comp.Validate(v, questionnaireID, questions, set)
	})

	saver := autosave.New(func(ctx context.Context, set model.AnswerSet) error {
		return a.client.SaveAnswers(ctx, v, userID, questionnaireID, set)
	}, a.log)
	defer saver.Stop()
	wizard.OnChange(saver.Offer)

	orch := upload.New(a.client, wizard, saver, upload.NewCatalog(), userID, questionnaireID, a.log)
	if err := orch.RefreshCatalog(ctx); err != nil {
		a.log.Warn("file catalog unavailable", zap.Error(err))
	}

	if st, err := a.client.AIStatus(ctx, v, userID, questionnaireID); err == nil && st.Terminal() {
		wizard.SetLocked(true)
		fmt.Println("questionnaire already processed, answers are read-only")
	}

	// The final submit reuses the autosave endpoint; the backend upserts.
	send := func(ctx context.Context, set model.AnswerSet) error {
		return a.client.SaveAnswers(ctx, v, userID, questionnaireID, set)
	}
	return a.fillLoop(ctx, wizard, orch, questions, send)
}

// fillLoop is the interactive wizard REPL.
func (a *app) fillLoop(ctx context.Context, wizard *form.Wizard, orch *upload.Orchestrator, questions []model.Question, send form.SendFunc) error {
	byID := map[int]model.Question{}
	for _, q := range questions {
		byID[q.ID] = q
	}

	printStep(wizard)
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("[step %d/%d] ", wizard.CurrentStep()+1, wizard.TotalSteps())
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case ":quit":
			return nil
		case ":prev":
			wizard.Prev()
			printStep(wizard)
		case ":goto":
			if len(fields) == 2 {
				if n, err := strconv.Atoi(fields[1]); err == nil {
					wizard.GoToStep(n - 1)
				}
			}
			printStep(wizard)
		case ":next", ":submit":
			advanced, err := wizard.Submit(ctx, send)
			if err != nil {
				fmt.Fprintln(os.Stderr, "submit:", err)
				continue
			}
			if advanced {
				printStep(wizard)
				continue
			}
			fmt.Println("questionnaire complete")
			return nil
		case ":upload":
			if err := a.uploadFromArgs(ctx, orch, byID, fields[1:]); err != nil {
				fmt.Fprintln(os.Stderr, "upload:", err)
			}
		case ":reuse":
			if err := a.reuseFromArgs(ctx, orch, byID, fields[1:]); err != nil {
				fmt.Fprintln(os.Stderr, "reuse:", err)
			}
		case ":rm":
			if err := a.removeFromArgs(ctx, orch, byID, fields[1:]); err != nil {
				fmt.Fprintln(os.Stderr, "remove:", err)
			}
		default:
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				fmt.Fprintln(os.Stderr, "expected <question-id>=<answer> or a : command")
				continue
			}
			c := wizard.Control(strings.TrimSpace(key))
			if c == nil {
				fmt.Fprintln(os.Stderr, "unknown question", key)
				continue
			}
			c.SetAndNotify(strings.TrimSpace(value))
		}
	}
}

func (a *app) uploadFromArgs(ctx context.Context, orch *upload.Orchestrator, byID map[int]model.Question, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: :upload <question-id> <slot-id> <path>")
	}
	qid, _ := strconv.Atoi(args[0])
	slot, _ := strconv.Atoi(args[1])
	q, ok := byID[qid]
	if !ok {
		return fmt.Errorf("unknown question %s", args[0])
	}
	f, err := os.Open(args[2])
	if err != nil {
		return err
	}
	defer f.Close()
	file, err := orch.Select(ctx, q, slot, "", f.Name(), f)
	if err != nil {
		return err
	}
	fmt.Println("uploaded", file.Filename, "as", file.ID)
	return nil
}

func (a *app) reuseFromArgs(ctx context.Context, orch *upload.Orchestrator, byID map[int]model.Question, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: :reuse <question-id> <slot-id> <file-id>")
	}
	qid, _ := strconv.Atoi(args[0])
	slot, _ := strconv.Atoi(args[1])
	q, ok := byID[qid]
	if !ok {
		return fmt.Errorf("unknown question %s", args[0])
	}
	if err := orch.Reuse(ctx, q, slot, args[2]); err != nil {
		return err
	}
	fmt.Println("attached", args[2])
	return nil
}

func (a *app) removeFromArgs(ctx context.Context, orch *upload.Orchestrator, byID map[int]model.Question, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: :rm <question-id> <slot-id>")
	}
	qid, _ := strconv.Atoi(args[0])
	slot, _ := strconv.Atoi(args[1])
	q, ok := byID[qid]
	if !ok {
		return fmt.Errorf("unknown question %s", args[0])
	}
	outcome, err := orch.Remove(ctx, q, slot)
	if err != nil {
		return err
	}
	switch outcome {
	case upload.OutcomeDeleted:
		fmt.Println("file removed and deleted")
	case upload.OutcomeDetached:
		fmt.Println("file detached, still linked elsewhere")
	default:
		fmt.Println("nothing to remove")
	}
	return nil
}

func printStep(wizard *form.Wizard) {
	for _, q := range wizard.StepQuestions() {
		mark := " "
		if q.Required {
			mark = "*"
		}
		fmt.Printf("%s [%d] %s", mark, q.ID, q.Text)
		if c := wizard.Control(q.Key()); c != nil && c.Value() != nil {
			fmt.Printf("  (current: %v)", c.Value())
		}
		fmt.Println()
		for _, opt := range q.Options {
			fmt.Printf("      slot %d: %s\n", opt.ID, opt.Name)
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/triviacast/go/internal/dbconfig"
	"github.com/mcdev12/triviacast/go/internal/models"
	"gopkg.in/yaml.v3"
)

// QuestionSetFile mirrors the YAML layout of a question set
type QuestionSetFile struct {
	Sets []QuestionSetEntry `yaml:"sets"`
}

type QuestionSetEntry struct {
	Title     string          `yaml:"title"`
	Questions []QuestionEntry `yaml:"questions"`
}

type QuestionEntry struct {
	Text           string   `yaml:"text"`
	Options        []string `yaml:"options"`
	Answer         string   `yaml:"answer"`
	VerseReference string   `yaml:"verse_reference"`
	VerseContent   string   `yaml:"verse_content"`
}

// setNamespace keeps set and question ids stable across reruns
var setNamespace = uuid.MustParse("6f1c2b7e-4a55-4d0e-9b7a-3c2f1e0d9a81")

func main() {
	path := "go/internal/assets/questions.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the YAML question sets
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read YAML: %v\n", err)
		os.Exit(1)
	}
	sets, err := parseQuestionSets(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse YAML: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert each set in its own transaction and count
	var (
		total    = len(sets)
		inserted int
		skipped  int
		errs     int
	)

	for _, s := range sets {
		created, err := seedSet(ctx, pool, s.set, s.questions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting set %q: %v\n", s.set.Title, err)
			errs++
			continue
		}
		if created {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Question seed complete: %d sets, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}

type parsedSet struct {
	set       models.QuestionSet
	questions []models.Question
}

// parseQuestionSets validates the file and converts it to models with deterministic ids
func parseQuestionSets(data []byte) ([]parsedSet, error) {
	var file QuestionSetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal question sets: %w", err)
	}
	if len(file.Sets) == 0 {
		return nil, errors.New("no question sets in file")
	}

	out := make([]parsedSet, 0, len(file.Sets))
	for _, entry := range file.Sets {
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			return nil, errors.New("question set without a title")
		}
		if len(entry.Questions) == 0 {
			return nil, fmt.Errorf("set %q has no questions", title)
		}

		setID := uuid.NewSHA1(setNamespace, []byte(title))
		ps := parsedSet{set: models.QuestionSet{ID: setID, Title: title}}
		for i, qe := range entry.Questions {
			q, err := toQuestion(setID, i, qe)
			if err != nil {
				return nil, fmt.Errorf("set %q question %d: %w", title, i+1, err)
			}
			ps.questions = append(ps.questions, q)
		}
		out = append(out, ps)
	}
	return out, nil
}

func toQuestion(setID uuid.UUID, index int, qe QuestionEntry) (models.Question, error) {
	if strings.TrimSpace(qe.Text) == "" {
		return models.Question{}, errors.New("missing text")
	}
	if len(qe.Options) != len(models.OptionLetters) {
		return models.Question{}, fmt.Errorf("expected %d options, got %d", len(models.OptionLetters), len(qe.Options))
	}
	answer := strings.ToUpper(strings.TrimSpace(qe.Answer))
	if !models.IsValidOption(answer) {
		return models.Question{}, fmt.Errorf("invalid answer %q", qe.Answer)
	}

	q := models.Question{
		ID:            uuid.NewSHA1(setID, []byte(fmt.Sprintf("%d", index))),
		QuestionSetID: setID,
		OrderIndex:    index,
		Text:          qe.Text,
		CorrectOption: answer,
	}
	copy(q.Options[:], qe.Options)
	if qe.VerseReference != "" {
		ref := qe.VerseReference
		q.VerseReference = &ref
	}
	if qe.VerseContent != "" {
		content := qe.VerseContent
		q.VerseContent = &content
	}
	return q, nil
}

// seedSet inserts a set and its questions, skipping sets that already exist
func seedSet(ctx context.Context, pool *pgxpool.Pool, set models.QuestionSet, questions []models.Question) (bool, error) {
	created := false
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO question_sets (id, title)
            VALUES ($1, $2)
            ON CONFLICT (id) DO NOTHING
        `, set.ID, set.Title)
		if err != nil {
			return fmt.Errorf("failed to insert set: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true

		batch := &pgx.Batch{}
		for _, q := range questions {
			batch.Queue(`
                INSERT INTO questions (
                  id, question_set_id, order_index, text,
                  option_a, option_b, option_c, option_d,
                  correct_option, verse_reference, verse_content
                ) VALUES (
                  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
                )
            `,
				q.ID, q.QuestionSetID, q.OrderIndex, q.Text,
				q.Options[0], q.Options[1], q.Options[2], q.Options[3],
				q.CorrectOption, q.VerseReference, q.VerseContent,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert questions: %w", err)
		}
		return nil
	})
	return created, err
}

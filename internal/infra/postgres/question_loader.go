package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/domain"
)

// QuestionLoader pools the quiz items of every lecture on a floor.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, floor int) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.question, q.options, q.correct_answer, q.time_limit
		FROM quiz_questions q
		JOIN lectures l ON l.id = q.lecture_id
		WHERE l.floor = $1
		ORDER BY l.order_in_floor, q.id`, floor)
	if err != nil {
		return nil, fmt.Errorf("load floor %d questions: %w", floor, err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var rawOptions []byte
		if err := rows.Scan(&q.ID, &q.Prompt, &rawOptions, &q.CorrectAnswer, &q.TimeLimit); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options for %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load floor %d questions: %w", floor, err)
	}
	return questions, nil
}

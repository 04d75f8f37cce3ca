package domain

// Event is an outbound message queued on a player's connection channel.
// The transport layer serializes it; the engine never touches the wire.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// PlayerSummary is the opponent-facing slice of a profile.
type PlayerSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Level       int    `json:"level"`
}

// MatchFound announces a successful pairing to both sides.
type MatchFound struct {
	BattleID       string        `json:"battleId"`
	Player1        PlayerSummary `json:"player1"`
	Player2        PlayerSummary `json:"player2"`
	TotalQuestions int           `json:"totalQuestions"`
}

// RoundQuestion releases one question to both sides.
type RoundQuestion struct {
	QuestionIndex int      `json:"questionIndex"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	TimeLimit     int      `json:"timeLimit"`
}

// AnswerResult is returned to the answering player only.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	CorrectAnswer int  `json:"correctAnswer"`
	PointsEarned  int  `json:"pointsEarned"`
	YourScore     int  `json:"yourScore"`
	OpponentScore int  `json:"opponentScore"`
}

// BattleComplete closes a battle on both sides. XPEarned is
// recipient-specific; the rest of the payload is shared.
type BattleComplete struct {
	WinnerID     string `json:"winnerId,omitempty"`
	Player1Score int    `json:"player1Score"`
	Player2Score int    `json:"player2Score"`
	XPEarned     int    `json:"xpEarned"`
	Forfeit      bool   `json:"forfeit,omitempty"`
}

package lobby

import "errors"

var (
	ErrInvalidRoomCode   = errors.New("invalid room code")
	ErrInvalidPlayerName = errors.New("player name must be 2-30 letters, digits or spaces")
	ErrInvalidTimer      = errors.New("timer duration must be between 5 and 120 seconds")
	ErrEmptyQuestionSet  = errors.New("question set has no questions")
	ErrRoomCodeExhausted = errors.New("could not allocate a free room code")
	ErrGameNotJoinable   = errors.New("game is not accepting players")
	ErrAnswerLocked      = errors.New("answer window is closed")
	ErrGamePaused        = errors.New("game is paused")
	ErrInvalidOption     = errors.New("selected option must be A, B, C or D")
	ErrPlayerNotInGame   = errors.New("player does not belong to this game")
	ErrPlayerAlreadyLeft = errors.New("player already left")
)

package model

import "errors"

var (
	ErrNoQuestions     = errors.New("test has no questions")
	ErrUnknownQuestion = errors.New("question is not part of this test")
	ErrInvalidAnswer   = errors.New("answer does not fit the question type")
)

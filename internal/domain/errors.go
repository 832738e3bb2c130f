package domain

import "errors"

var (
	ErrRepositoryNotFound  = errors.New("repository not found")
	ErrPullRequestNotFound = errors.New("pull request not found")
	ErrReviewNotFound      = errors.New("review not found")
	ErrCommentNotFound     = errors.New("comment not found")
	ErrTaskNotFound        = errors.New("task not found")

	// ErrInvalidState is returned when an action is attempted against an
	// entity whose current state does not allow it, e.g. starting a review
	// on a PR that is not pending.
	ErrInvalidState = errors.New("invalid state for requested action")
)

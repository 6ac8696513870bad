package vaultservice

import (
	"time"

	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/models"
	"github.com/starford/lightauth/internal/otp"
)

// CodeView is the current code of one account together with its countdown.
type CodeView struct {
	Index            int     `json:"index"`
	Name             string  `json:"name"`
	Issuer           string  `json:"issuer"`
	Code             string  `json:"code"`
	RemainingSeconds int     `json:"remaining_seconds"`
	ProgressPercent  float64 `json:"progress_percent"`
	Period           uint    `json:"period"`
	Error            string  `json:"error,omitempty"`
}

// CurrentCode derives the code of the account at index i for now.
func (s *Service) CurrentCode(i int, now time.Time) (CodeView, error) {
	a, err := s.Get(i)
	if err != nil {
		return CodeView{}, err
	}
	c, err := otp.Current(a.Secret, now)
	if err != nil {
		return CodeView{}, err
	}
	return codeView(i, a, c), nil
}

// Codes derives the codes of every account for now. An account whose stored
// secret cannot produce a code is reported with Error set instead of failing
// the whole list.
func (s *Service) Codes(now time.Time) ([]CodeView, error) {
	list, err := s.Accounts()
	if err != nil {
		return nil, err
	}
	out := make([]CodeView, 0, len(list))
	for i, a := range list {
		c, err := otp.Current(a.Secret, now)
		if err != nil {
			out = append(out, CodeView{
				Index:            i,
				Name:             a.Name,
				Issuer:           a.Issuer,
				RemainingSeconds: otp.RemainingSeconds(now, otp.DefaultPeriod),
				ProgressPercent:  otp.ProgressPercent(now, otp.DefaultPeriod),
				Period:           otp.DefaultPeriod,
				Error:            apperr.ErrInvalidSecret.Error(),
			})
			continue
		}
		out = append(out, codeView(i, a, c))
	}
	return out, nil
}

func codeView(i int, a models.Account, c otp.Code) CodeView {
	return CodeView{
		Index:            i,
		Name:             a.Name,
		Issuer:           a.Issuer,
		Code:             c.Code,
		RemainingSeconds: c.RemainingSeconds,
		ProgressPercent:  c.ProgressPercent,
		Period:           c.Period,
	}
}

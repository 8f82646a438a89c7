package dto

import "github.com/vibast-solutions/ms-go-identity/app/entity"

type StartLoginResult struct {
	Email      string
	UserExists bool
}

type VerificationStatusResult struct {
	Account      *entity.Account
	NeedsRenewal bool
}

type PersonalInformations struct {
	GivenName   string
	FamilyName  string
	PhoneNumber string
	Job         string
}

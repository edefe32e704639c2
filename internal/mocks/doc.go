// Package mocks provides shared test doubles for interfaces used across
// packages: the JWT service, the lexical store and the verification service.
//
// Function-field mocks (MockJWTService, MockVerificationService) fall back to
// their default fields when no function is set. TestifyMockLexicalStore is
// driven with testify/mock expectations:
//
//	lexicon := new(mocks.TestifyMockLexicalStore)
//	lexicon.On("GetItem", mock.Anything, itemID).Return(item, nil)
//	defer lexicon.AssertExpectations(t)
package mocks

package browser

import "testing"

// Testable property 6 : among candidates with a positive match
// count, the chosen one maximizes that count; ties favor the
// latest-inserted candidate.
func TestMatchAuthPicksHighestScoreThenLatest(t *testing.T) {
	db := []AuthRecord{
		{Username: "alice", Password: "p1"},                         // score 1
		{Realm: "R", Username: "alice", Password: "p2"},              // score 2, inserted earlier
		{Realm: "R", Username: "alice", Password: "p3"},              // score 2, inserted later -> wins tie
		{URL: "http://other/", Username: "bob", Password: "nomatch"}, // score 0, never chosen
	}

	got, ok := matchAuth(db, "http://example/", "R", "alice")
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Password != "p3" {
		t.Errorf("Password = %q, want p3 (latest-inserted among the tied highest scorers)", got.Password)
	}
}

func TestMatchAuthNoCandidatesReturnsFalse(t *testing.T) {
	_, ok := matchAuth(nil, "http://example/", "R", "alice")
	if ok {
		t.Error("expected no match against an empty auth_db")
	}
}

func TestMatchAuthWildcardFieldsMatchAnything(t *testing.T) {
	db := []AuthRecord{{Username: "alice", Password: "secret"}}
	got, ok := matchAuth(db, "http://anything/", "any-realm", "alice")
	if !ok || got.Password != "secret" {
		t.Errorf("got %+v, %v; want a wildcard-url/realm match on username", got, ok)
	}
}

func TestMatchAuthAllFieldsDisagreeingScoresZero(t *testing.T) {
	db := []AuthRecord{{Username: "bob", Password: "wrong"}}
	_, ok := matchAuth(db, "http://example/", "R", "alice")
	if ok {
		t.Error("expected the username-only candidate to score 0 against a non-matching username and stay unselected")
	}
}

// A candidate with some fields disagreeing is still eligible and wins if its
// remaining fields give it the highest positive score: disagreement only
// withholds that field's point, it never disqualifies the record.
func TestMatchAuthPartialDisagreementStillWinsOnPositiveScore(t *testing.T) {
	db := []AuthRecord{
		{URL: "http://x/", Realm: "Members", Username: "eve", Password: "p"},
	}

	got, ok := matchAuth(db, "http://x/", "Other", "alice")
	if !ok {
		t.Fatal("expected the URL match alone to give this candidate a positive score")
	}
	if got.Username != "eve" || got.Password != "p" {
		t.Errorf("got %+v; want the eve/p record despite its Realm/Username disagreeing", got)
	}
}

func TestMatchCertWildcardAndExact(t *testing.T) {
	db := []CertRecord{{}, {URL: "https://good/"}}
	got, ok := matchCert(db, "https://good/")
	if !ok || got.URL != "https://good/" {
		t.Errorf("got %+v, %v; want the exact-url entry over the wildcard", got, ok)
	}

	got, ok = matchCert(db, "https://other/")
	if !ok || got.URL != "" {
		t.Errorf("got %+v, %v; want the wildcard entry to still match", got, ok)
	}
}

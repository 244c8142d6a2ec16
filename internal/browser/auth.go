package browser

// AuthRecord is one entry of a Session's auth_db. Any field may
// be the empty string, meaning "matches anything" (wildcard).
type AuthRecord struct {
	URL      string
	Realm    string
	Username string
	Password string
}

// CertRecord is one entry of a Session's cert_db. An empty URL is a
// wildcard.
type CertRecord struct {
	URL string
}

// scoreAuth counts how many of a candidate's non-wildcard fields match the
// corresponding prompt value, treating a wildcard on either side as a
// match. A candidate with no non-wildcard fields at all scores 0, and
// matchAuth never selects a 0-score candidate.
func scoreAuth(c AuthRecord, url, realm, username string) int {
	score := 0
	if fieldMatches(c.URL, url) && c.URL != "" {
		score++
	}
	if fieldMatches(c.Realm, realm) && c.Realm != "" {
		score++
	}
	if fieldMatches(c.Username, username) && c.Username != "" {
		score++
	}
	return score
}

func fieldMatches(candidate, actual string) bool {
	return candidate == "" || actual == "" || candidate == actual
}

// matchAuth applies the default login policy: score every db entry (see
// scoreAuth) and pick the one with the highest positive score; ties go to
// the latest-inserted (db is scanned in reverse so the first tie found is
// the latest). A disagreeing field only withholds that field's point, it
// never disqualifies the candidate — a record with one disagreeing field
// can still win on the strength of its other matching fields. If no
// candidate scores above zero, found is false.
func matchAuth(db []AuthRecord, url, realm, username string) (AuthRecord, bool) {
	best := 0
	var bestRecord AuthRecord
	found := false
	for i := len(db) - 1; i >= 0; i-- {
		c := db[i]
		s := scoreAuth(c, url, realm, username)
		if s > 0 && s > best {
			best = s
			bestRecord = c
			found = true
		}
	}
	return bestRecord, found
}

// matchCert is cert_db's analogue of matchAuth: a wildcard URL matches any
// prompt; the latest-inserted exact match wins over an earlier wildcard.
func matchCert(db []CertRecord, url string) (CertRecord, bool) {
	best := -1
	var bestRecord CertRecord
	found := false
	for i := len(db) - 1; i >= 0; i-- {
		c := db[i]
		if c.URL != "" && c.URL != url {
			continue
		}
		s := 0
		if c.URL != "" {
			s = 1
		}
		if s > best {
			best = s
			bestRecord = c
			found = true
		}
	}
	return bestRecord, found
}

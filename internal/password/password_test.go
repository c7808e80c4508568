package password

import "testing"

func TestHashVerify_RoundTrip(t *testing.T) {
	digest, err := Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if digest == "pw1" || digest == "" {
		t.Fatalf("digest must not be empty or the plaintext: %q", digest)
	}
	if !Verify("pw1", digest) {
		t.Fatal("expected Verify to succeed for the hashed password")
	}
	if Verify("pw2", digest) {
		t.Fatal("expected Verify to fail for a different password")
	}
}

func TestHash_FreshSaltPerCall(t *testing.T) {
	first, err := Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
	if !Verify("same-password", first) || !Verify("same-password", second) {
		t.Fatal("both digests must verify against the original password")
	}
}

func TestVerify_MalformedDigest(t *testing.T) {
	for _, digest := range []string{"", "not-a-bcrypt-digest", "$2a$xx$broken"} {
		if Verify("anything", digest) {
			t.Fatalf("Verify must return false for malformed digest %q", digest)
		}
	}
}

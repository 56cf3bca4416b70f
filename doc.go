/*
Package jwtverify verifies JSON Web Tokens issued by OpenID Connect /
OAuth2 identity providers.

Given a raw compact-serialized JWT, a Verifier decides whether the token
is authentic and currently acceptable under the configured policy, and
returns the decoded payload on success. Signing keys are resolved from
the issuer's JWKS endpoint through a shared cache that coalesces
concurrent fetches and penalty-boxes kids that are provably unknown, so
hostile tokens cannot induce unbounded traffic against the issuer.

# Getting started

	verifier, err := jwtverify.New(
	    jwtverify.WithIssuer("https://issuer.example.com/",
	        jwtverify.WithAudience("my-api"),
	        jwtverify.WithGraceSeconds(30),
	    ),
	)
	if err != nil {
	    log.Fatal(err)
	}

	payload, err := verifier.Verify(ctx, rawToken)
	if err != nil {
	    // errors are tagged; see the jwterror package
	}

# Synchronous verification

Verify is the only verification operation that can suspend: it fetches the JWKS when
the signing key is not resident. VerifySync never performs I/O; prefetch
the key sets first:

	if err := verifier.Hydrate(ctx); err != nil {
	    log.Fatal(err)
	}
	payload, err := verifier.VerifySync(rawToken)

# Errors

Every failure is a *jwterror.Error carrying a Kind and retryability
metadata. The first failing check aborts the pipeline; checks run in a
fixed order (issuer, audience, expiration, not-before, specialization
checks, scope, custom), so failure attribution is deterministic.

# Packages

  - jwks: the JWKS cache, fetch transport, and penalty box
  - jwk: key-set parsing and JWK to native key conversion
  - jws: per-algorithm signature verification
  - validator: claim assertions and policies
  - jwterror: the tagged error taxonomy
  - cognito: a preset for Amazon Cognito user pools
  - middleware (and subpackages): net/http, gin, echo, and gRPC guards
*/
package jwtverify

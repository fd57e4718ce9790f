package ext4

import "testing"

func TestFeatureFlagsNames(t *testing.T) {
	ff := parseFeatureFlags(0, incompatFeatureDirectoryEntriesRecordFileType, roCompatFeatureMetadataChecksums)
	names := ff.names()
	want := map[string]bool{"filetype": true, "metadata_csum": true}
	if len(names) != len(want) {
		t.Fatalf("names() = %v, want exactly %v", names, want)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected feature name %q", n)
		}
	}
}

func TestRecognizedFeatureMasks(t *testing.T) {
	// the feature set a freshly formatted volume carries (filetype +
	// extents + 64bit + metadata_csum) must be fully recognized, or
	// every create operation would spuriously fail with Unsupported.
	incompat := incompatFeatureDirectoryEntriesRecordFileType | incompatFeatureExtents | incompatFeature64Bit
	if incompat&^recognizedIncompat != 0 {
		t.Errorf("fixture incompat bits %#x not fully recognized (mask %#x)", incompat, recognizedIncompat)
	}
	roCompat := roCompatFeatureMetadataChecksums
	if roCompat&^recognizedROCompat != 0 {
		t.Errorf("fixture ro-compat bits %#x not fully recognized (mask %#x)", roCompat, recognizedROCompat)
	}

	// quotas are an explicit Non-goal and must remain unrecognized.
	if roCompatFeatureQuota&recognizedROCompat != 0 {
		t.Error("quota ro-compat bit must not be in the recognized mask")
	}
}

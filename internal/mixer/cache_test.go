package mixer

import "testing"

func TestCachePutWhitelisted(t *testing.T) {
	c := NewCache()

	if !c.Put(NewMessage("/Console/Input_Channels", int32(32))) {
		t.Fatal("Put() rejected a whitelisted address")
	}
	if n, ok := c.Int("/Console/Input_Channels"); !ok || n != 32 {
		t.Errorf("Int() = %d, %v", n, ok)
	}

	// Last write wins.
	c.Put(NewMessage("/Console/Input_Channels", int32(48)))
	if n, _ := c.Int("/Console/Input_Channels"); n != 48 {
		t.Errorf("after overwrite Int() = %d, want 48", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheNeverHoldsOtherAddresses(t *testing.T) {
	c := NewCache()
	for i := 0; i < 10; i++ {
		if c.Put(NewMessage("/Input_Channels/1/mute", i)) {
			t.Fatal("Put() stored a non-whitelisted address")
		}
	}
	if c.Len() != 0 || c.Has("/Input_Channels/1/mute") {
		t.Errorf("cache holds %d entries, want 0", c.Len())
	}
}

func TestCacheCopies(t *testing.T) {
	c := NewCache()
	msg := NewMessage("/Aux_Outputs/1/Buss_Trim/name", "Vocal")
	c.Put(msg)

	msg.Args[0] = "changed"
	got, _ := c.Get("/Aux_Outputs/1/Buss_Trim/name")
	if got.Args[0] != "Vocal" {
		t.Errorf("cache aliased the stored message: %v", got.Args)
	}

	got.Args[0] = "changed again"
	again, _ := c.Get("/Aux_Outputs/1/Buss_Trim/name")
	if again.Args[0] != "Vocal" {
		t.Errorf("Get returned a shared slice: %v", again.Args)
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache()
	c.Put(NewMessage("/Console/Input_Channels", 8))
	c.Put(NewMessage("/Console/Aux_Outputs/modes", 1, 2))
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
	if _, ok := c.Get("/Console/Input_Channels"); ok {
		t.Error("Get() found an entry after Clear")
	}
}

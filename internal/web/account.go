package web

import (
	"net/http"
	"strings"

	"github.com/UkralStul/blog-web/internal/api"
	"github.com/UkralStul/blog-web/internal/domain"
	"github.com/UkralStul/blog-web/internal/forms"
	"github.com/UkralStul/blog-web/internal/query"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type formData[T any] struct {
	Form   T
	Errors forms.FieldErrors
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	if sess.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, sess, http.StatusOK, "login", "Login", formData[forms.LoginForm]{})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	form := forms.LoginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if errs := forms.Validate(form); errs != nil {
		form.Password = ""
		s.render(w, r, sess, http.StatusUnprocessableEntity, "login", "Login", formData[forms.LoginForm]{Form: form, Errors: errs})
		return
	}
	if err := s.sessions.Login(r.Context(), sess, form.Email, form.Password); err != nil {
		loggerFrom(r.Context(), s.log).Info("Login failed", zap.Error(err))
		s.flash(r, sess, domain.FlashError, api.Message(err, "Login failed"))
		form.Password = ""
		s.render(w, r, sess, http.StatusUnauthorized, "login", "Login", formData[forms.LoginForm]{Form: form})
		return
	}
	s.setCookie(w, sess.ID)
	s.flash(r, sess, domain.FlashSuccess, "Welcome back, "+sess.User.DisplayName()+"!")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	if sess.Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, sess, http.StatusOK, "register", "Register", formData[forms.RegisterForm]{})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	form := forms.RegisterForm{
		Username:        strings.TrimSpace(r.PostFormValue("username")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		FirstName:       strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:        strings.TrimSpace(r.PostFormValue("last_name")),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	rerender := func(status int, errs forms.FieldErrors) {
		form.Password, form.PasswordConfirm = "", ""
		s.render(w, r, sess, status, "register", "Register", formData[forms.RegisterForm]{Form: form, Errors: errs})
	}
	if errs := forms.Validate(form); errs != nil {
		rerender(http.StatusUnprocessableEntity, errs)
		return
	}
	err := s.sessions.Register(r.Context(), sess, api.RegisterInput{
		Username:  form.Username,
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		s.flash(r, sess, domain.FlashError, api.Message(err, "Registration failed"))
		rerender(http.StatusBadRequest, nil)
		return
	}
	s.setCookie(w, sess.ID)
	s.flash(r, sess, domain.FlashSuccess, "Account created!")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// logout always lands on the login page, with a full redirect so no page
// rendered for the old user survives.
func (s *Server) logout(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	if sess.Authenticated() {
		if err := s.sessions.Logout(r.Context(), sess); err != nil {
			loggerFrom(r.Context(), s.log).Error("Failed to log out", zap.Error(err))
			http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
			return
		}
		s.flash(r, sess, domain.FlashInfo, "You have been logged out")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type dashboardStats struct {
	TotalPosts     int
	PublishedPosts int
	TotalComments  int
}

type dashboardData struct {
	Stats  dashboardStats
	Recent []domain.Post
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	if sess.User == nil {
		s.failed(w, r, sess, nil, "Failed to load profile")
		return
	}

	var (
		posts    *domain.Page[domain.Post]
		comments *domain.Page[*domain.Comment]
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		posts, err = query.Get[*domain.Page[domain.Post]](ctx, s.query, userKey(resMyPosts, sess))
		return err
	})
	g.Go(func() (err error) {
		comments, err = query.Get[*domain.Page[*domain.Comment]](ctx, s.query, userKey(resMyComments, sess))
		return err
	})
	if err := g.Wait(); err != nil {
		s.failed(w, r, sess, err, "Failed to load dashboard")
		return
	}

	data := dashboardData{
		Stats: dashboardStats{TotalPosts: posts.Count, TotalComments: comments.Count},
	}
	for _, p := range posts.Results {
		if p.Status == domain.StatusPublished {
			data.Stats.PublishedPosts++
		}
	}
	data.Recent = posts.Results
	if len(data.Recent) > 5 {
		data.Recent = data.Recent[:5]
	}
	s.render(w, r, sess, http.StatusOK, "dashboard", "Dashboard", data)
}

func profileFormOf(u *domain.User) forms.ProfileForm {
	if u == nil {
		return forms.ProfileForm{}
	}
	return forms.ProfileForm{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Bio:       u.Bio,
		Website:   u.Website,
		Location:  u.Location,
	}
}

func (s *Server) profilePage(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	s.render(w, r, sess, http.StatusOK, "profile", "Profile", formData[forms.ProfileForm]{Form: profileFormOf(sess.User)})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	ctx := r.Context()
	form := forms.ProfileForm{
		FirstName: strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:  strings.TrimSpace(r.PostFormValue("last_name")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		Bio:       strings.TrimSpace(r.PostFormValue("bio")),
		Website:   strings.TrimSpace(r.PostFormValue("website")),
		Location:  strings.TrimSpace(r.PostFormValue("location")),
	}
	if errs := forms.Validate(form); errs != nil {
		s.render(w, r, sess, http.StatusUnprocessableEntity, "profile", "Profile", formData[forms.ProfileForm]{Form: form, Errors: errs})
		return
	}
	if sess.User == nil {
		s.failed(w, r, sess, nil, "Failed to update profile")
		return
	}

	u, err := s.api.UpdateUser(api.WithToken(ctx, sess.AccessToken), sess.User.ID, api.UserPatch{
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Email:     form.Email,
		Bio:       form.Bio,
		Website:   form.Website,
		Location:  form.Location,
	})
	if err != nil {
		s.flash(r, sess, domain.FlashError, api.Message(err, "Failed to update profile"))
		s.render(w, r, sess, http.StatusBadRequest, "profile", "Profile", formData[forms.ProfileForm]{Form: form})
		return
	}
	if err := s.sessions.SetUser(ctx, sess, u); err != nil {
		loggerFrom(ctx, s.log).Warn("Failed to store updated user", zap.Error(err))
	}
	s.flash(r, sess, domain.FlashSuccess, "Profile updated successfully!")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

type writeData struct {
	Form       forms.PostForm
	Errors     forms.FieldErrors
	Categories []domain.Category
	Tags       []domain.Tag
	EditID     string // set when editing an existing post
}

func (s *Server) writeOptions(r *http.Request) ([]domain.Category, []domain.Tag, error) {
	var (
		cats []domain.Category
		tags []domain.Tag
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		cats, err = s.categories(ctx)
		return err
	})
	g.Go(func() (err error) {
		tags, err = query.Get[[]domain.Tag](ctx, s.query, query.NewKey(resTags))
		return err
	})
	return cats, tags, g.Wait()
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	data := writeData{Form: forms.PostForm{Status: string(domain.StatusDraft)}}
	if id := r.URL.Query().Get("edit"); id != "" {
		post, err := s.ownPost(r, sess, id)
		if api.IsNotFound(err) {
			s.render(w, r, sess, http.StatusNotFound, "not_found", "Post not found", notFoundData{
				What:     "post",
				BackURL:  "/dashboard",
				BackText: "Back to dashboard",
			})
			return
		}
		if err != nil {
			s.failed(w, r, sess, err, "Failed to load post")
			return
		}
		data.EditID = post.ID
		data.Form = postForm(post)
	}

	cats, tags, err := s.writeOptions(r)
	if err != nil {
		s.failed(w, r, sess, err, "Failed to load categories")
		return
	}
	data.Categories, data.Tags = cats, tags
	s.render(w, r, sess, http.StatusOK, "write", "Write", data)
}

// ownPost loads a post of the session's user. Posts of other users are
// reported as not found.
func (s *Server) ownPost(r *http.Request, sess *domain.Session, id string) (*domain.Post, error) {
	post, err := query.Get[*domain.Post](r.Context(), s.query, authorPostKey(id, sess))
	if err != nil {
		return nil, err
	}
	if post.Author.ID != sess.User.ID {
		return nil, &api.Error{Status: http.StatusNotFound, Message: "Not found."}
	}
	return post, nil
}

func postForm(p *domain.Post) forms.PostForm {
	f := forms.PostForm{
		Title:      p.Title,
		Excerpt:    p.Excerpt.OrElse(""),
		CategoryID: p.Category.ID,
		Status:     string(p.Status),
		Content:    p.Content,
	}
	for _, t := range p.Tags {
		f.TagIDs = append(f.TagIDs, t.ID)
	}
	return f
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request, sess *domain.Session) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	form := forms.PostForm{
		Title:      strings.TrimSpace(r.PostForm.Get("title")),
		Excerpt:    strings.TrimSpace(r.PostForm.Get("excerpt")),
		CategoryID: r.PostForm.Get("category"),
		TagIDs:     r.PostForm["tags"],
		Status:     r.PostForm.Get("status"),
		Content:    r.PostForm.Get("content"),
	}

	editID := r.PostForm.Get("edit")

	rerender := func(status int, errs forms.FieldErrors) {
		cats, tags, err := s.writeOptions(r)
		if err != nil {
			s.failed(w, r, sess, err, "Failed to load categories")
			return
		}
		s.render(w, r, sess, status, "write", "Write", writeData{Form: form, Errors: errs, Categories: cats, Tags: tags, EditID: editID})
	}

	if errs := forms.Validate(form); errs != nil {
		if _, ok := errs["content"]; ok {
			s.flash(r, sess, domain.FlashError, "Content is required")
		}
		rerender(http.StatusUnprocessableEntity, errs)
		return
	}

	var (
		post *domain.Post
		err  error
	)
	tokenCtx := api.WithToken(ctx, sess.AccessToken)
	status := domain.PostStatus(form.Status)
	if editID == "" {
		post, err = s.api.CreatePost(tokenCtx, api.CreatePostInput{
			Title:      form.Title,
			Content:    form.Content,
			Excerpt:    form.Excerpt,
			CategoryID: form.CategoryID,
			TagIDs:     form.TagIDs,
			Status:     status,
		})
	} else {
		post, err = s.api.UpdatePost(tokenCtx, editID, api.PostPatch{
			Title:      &form.Title,
			Content:    &form.Content,
			Excerpt:    &form.Excerpt,
			CategoryID: &form.CategoryID,
			TagIDs:     tagSelection(form.TagIDs),
			Status:     &status,
		})
	}
	if err != nil {
		loggerFrom(ctx, s.log).Warn("Failed to save post", zap.String("edit", editID), zap.Error(err))
		fallback := "Failed to create post"
		if editID != "" {
			fallback = "Failed to update post"
		}
		s.flash(r, sess, domain.FlashError, api.Message(err, fallback))
		rerender(http.StatusBadRequest, nil)
		return
	}

	s.query.Invalidate(ctx, resPosts, resPost, resMyPosts, resCategories, resCategory)
	// The author is redirected to the post next; serve it from the response.
	s.query.Prime(ctx, authorPostKey(post.ID, sess), post)
	if post.Status == domain.StatusPublished {
		s.flash(r, sess, domain.FlashSuccess, "Post published successfully!")
	} else {
		s.flash(r, sess, domain.FlashSuccess, "Draft saved!")
	}
	http.Redirect(w, r, "/blog/"+post.ID, http.StatusSeeOther)
}

// tagSelection sends the full selection, so unticking every tag clears them.
func tagSelection(ids []string) *[]string {
	if ids == nil {
		ids = []string{}
	}
	return &ids
}
